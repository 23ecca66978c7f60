package heartbeat

import (
	"sync"
	"time"
)

// Tracker keeps a bounded heartbeat history per unit. The history feeds
// diagnostic bundles, so it must stay available after the unit fails.
type Tracker struct {
	mu      sync.RWMutex
	history map[string][]time.Time
	limit   int
}

// NewTracker creates a tracker retaining up to limit beats per unit.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = 64
	}
	return &Tracker{
		history: make(map[string][]time.Time),
		limit:   limit,
	}
}

// Record appends a heartbeat, evicting the oldest beyond the limit.
func (t *Tracker) Record(name string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := append(t.history[name], at)
	if len(h) > t.limit {
		h = h[len(h)-t.limit:]
	}
	t.history[name] = h
}

// History returns up to n most recent beats, oldest first.
func (t *Tracker) History(name string, n int) []time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h := t.history[name]
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]time.Time, len(h))
	copy(out, h)
	return out
}

// Last returns the most recent beat, if any.
func (t *Tracker) Last(name string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h := t.history[name]
	if len(h) == 0 {
		return time.Time{}, false
	}
	return h[len(h)-1], true
}

// Forget drops a unit's history after deregistration.
func (t *Tracker) Forget(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, name)
}
