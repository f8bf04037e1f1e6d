package habitat

import (
	"sync"

	"github.com/habitat-home/habitat-core/internal/engine"
)

// defaultEventCapacity is the ring size when Options leaves it zero.
const defaultEventCapacity = 500

// eventRing retains the most recent events, evicting the oldest once
// capacity is reached. Safe for concurrent use.
type eventRing struct {
	mu     sync.RWMutex
	events []engine.Event
	cap    int
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &eventRing{cap: capacity}
}

// Append adds an event, evicting the oldest when full.
func (r *eventRing) Append(evt engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) >= r.cap {
		copy(r.events, r.events[1:])
		r.events[len(r.events)-1] = evt
		return
	}
	r.events = append(r.events, evt)
}

// Recent returns up to limit events, newest last. limit <= 0 returns all.
func (r *eventRing) Recent(limit int) []engine.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]engine.Event, n)
	copy(out, r.events[len(r.events)-n:])
	return out
}

// Len returns the number of retained events.
func (r *eventRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
