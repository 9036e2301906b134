package dispatch

import (
	"context"
	"sync"
)

// Recent is a sink that keeps the last events in memory for the operator API.
type Recent struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewRecent keeps up to size events.
func NewRecent(size int) *Recent {
	return &Recent{events: make([]Event, max(size, 1))}
}

func (r *Recent) Name() string { return "recent" }

func (r *Recent) Deliver(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = event
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

func (r *Recent) Close() error { return nil }

// List returns up to limit events, newest first. A limit <= 0 returns all.
func (r *Recent) List(limit int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.events)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Event, 0, limit)
	for i := range limit {
		idx := (r.next - 1 - i + len(r.events)) % len(r.events)
		out = append(out, r.events[idx])
	}
	return out
}
