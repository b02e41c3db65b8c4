package server

import (
	"mazeplay/protocol"
)

// Commands processed one at a time by the room goroutine.
type (
	joinCmd struct {
		Conn  Conn
		Reply chan<- joinResult
	}

	joinResult struct {
		SessionID string
		Err       error
	}

	leaveCmd struct {
		SessionID string
		Reason    string
		Done      chan<- struct{}
	}

	snapshotCmd struct {
		Reply chan<- map[string]protocol.PlayerState
	}

	setMaxClientsCmd struct {
		N     int
		Reply chan<- int
	}
)

// OnUpdate records a session's newest state for the room goroutine. It never
// blocks: a newer update from the same session replaces one that has not
// been applied yet, so the last write always lands.
func (r *Room) OnUpdate(sessionID string, st protocol.PlayerState) bool {
	select {
	case <-r.quit:
		return false
	default:
	}

	r.updMu.Lock()
	if _, ok := r.updates[sessionID]; ok {
		r.metrics.IncUpdatesCoalesced()
	} else {
		r.updOrder = append(r.updOrder, sessionID)
	}
	r.updates[sessionID] = st
	r.updMu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

// takeUpdates hands the pending updates to the room goroutine in arrival
// order and resets the buffer.
func (r *Room) takeUpdates() ([]string, map[string]protocol.PlayerState) {
	r.updMu.Lock()
	defer r.updMu.Unlock()
	if len(r.updOrder) == 0 {
		return nil, nil
	}
	order, updates := r.updOrder, r.updates
	r.updOrder = nil
	r.updates = make(map[string]protocol.PlayerState, len(updates))
	return order, updates
}

// drainUpdates applies everything OnUpdate has buffered so far.
func (r *Room) drainUpdates() {
	order, updates := r.takeUpdates()
	for _, id := range order {
		r.applyUpdate(id, updates[id])
	}
}
