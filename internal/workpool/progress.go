package workpool

import "sync"

// ProgressFunc receives completion counts for a named phase.
type ProgressFunc func(phase string, done, total int)

// Tracker counts completed items and forwards them to a ProgressFunc. Calls
// to the callback are serialized, so it may keep unsynchronized state.
type Tracker struct {
	mu    sync.Mutex
	fn    ProgressFunc
	phase string
	total int
	done  int
}

// NewTracker reports the start of phase (0 of total) and returns a tracker.
// A nil fn yields a tracker that only counts.
func NewTracker(phase string, total int, fn ProgressFunc) *Tracker {
	t := &Tracker{fn: fn, phase: phase, total: total}
	if fn != nil {
		fn(phase, 0, total)
	}
	return t
}

// Done records one completed item.
func (t *Tracker) Done() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	if t.fn != nil {
		t.fn(t.phase, t.done, t.total)
	}
}

// Completed returns the number of items recorded so far.
func (t *Tracker) Completed() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
