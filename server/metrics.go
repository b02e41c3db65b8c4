package server

import (
	"sync/atomic"
)

// RoomMetrics 房间运行指标（用于监控与调试）
type RoomMetrics struct {
	Joins              int64 // sessions admitted
	JoinsRejected      int64 // joins refused, e.g. room full
	Leaves             int64 // sessions removed, any reason
	UpdatesApplied     int64 // playerUpdate messages applied
	StaleUpdates       int64 // updates for sessions no longer present
	MalformedRejected  int64 // messages dropped by validation
	UpdatesCoalesced   int64 // updates replaced by a newer one before being applied
	SlowClientsDropped int64 // connections detached because their queue was full
	EventsSent         int64 // envelopes queued to clients
}

func (m *RoomMetrics) IncJoins()              { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncJoinsRejected()      { atomic.AddInt64(&m.JoinsRejected, 1) }
func (m *RoomMetrics) IncLeaves()             { atomic.AddInt64(&m.Leaves, 1) }
func (m *RoomMetrics) IncUpdatesApplied()     { atomic.AddInt64(&m.UpdatesApplied, 1) }
func (m *RoomMetrics) IncStaleUpdates()       { atomic.AddInt64(&m.StaleUpdates, 1) }
func (m *RoomMetrics) IncMalformedRejected()  { atomic.AddInt64(&m.MalformedRejected, 1) }
func (m *RoomMetrics) IncUpdatesCoalesced()   { atomic.AddInt64(&m.UpdatesCoalesced, 1) }
func (m *RoomMetrics) IncSlowClientsDropped() { atomic.AddInt64(&m.SlowClientsDropped, 1) }
func (m *RoomMetrics) AddEventsSent(n int)    { atomic.AddInt64(&m.EventsSent, int64(n)) }

// Snapshot 返回只读副本，供 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"joins":                atomic.LoadInt64(&m.Joins),
		"joins_rejected":       atomic.LoadInt64(&m.JoinsRejected),
		"leaves":               atomic.LoadInt64(&m.Leaves),
		"updates_applied":      atomic.LoadInt64(&m.UpdatesApplied),
		"stale_updates":        atomic.LoadInt64(&m.StaleUpdates),
		"malformed_rejected":   atomic.LoadInt64(&m.MalformedRejected),
		"updates_coalesced":    atomic.LoadInt64(&m.UpdatesCoalesced),
		"slow_clients_dropped": atomic.LoadInt64(&m.SlowClientsDropped),
		"events_sent":          atomic.LoadInt64(&m.EventsSent),
	}
}
