// Package throttle limits how often an action runs: the first call in a
// window is deferred to the end of the window and every call made meanwhile
// is dropped.
package throttle

import (
	"sync"
	"time"
)

// DefaultInterval is the send window used for player updates.
const DefaultInterval = 100 * time.Millisecond

// Timer is the part of *time.Timer the throttle needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Timer

// Option configures a Throttle.
type Option func(*Throttle)

// WithAfterFunc swaps the timer source, mainly for tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(t *Throttle) { t.after = fn }
}

// Throttle owns a single pending slot. Each independent send cadence needs
// its own instance.
type Throttle struct {
	after AfterFunc

	mu      sync.Mutex
	pending bool
	stopped bool
	timer   Timer
	gen     uint64
}

// New returns an idle throttle.
func New(opts ...Option) *Throttle {
	t := &Throttle{
		after: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Schedule runs action once after interval unless a run is already pending,
// in which case the call has no effect. It reports whether action was
// scheduled.
func (t *Throttle) Schedule(action func(), interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending || t.stopped {
		return false
	}
	t.pending = true
	t.gen++
	gen := t.gen
	t.timer = t.after(interval, func() { t.fire(gen, action) })
	return true
}

func (t *Throttle) fire(gen uint64, action func()) {
	t.mu.Lock()
	if t.stopped || gen != t.gen {
		t.mu.Unlock()
		return
	}
	// The slot frees up before action runs, so a call made while it runs
	// opens the next window instead of being lost.
	t.pending = false
	t.timer = nil
	t.mu.Unlock()

	action()
}

// Pending reports whether a run is waiting.
func (t *Throttle) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Stop discards any pending run. Later Schedule calls are ignored.
// Stop is safe to call more than once.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
