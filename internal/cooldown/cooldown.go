// Package cooldown suppresses repeated identity events for the same label
// within a time window.
package cooldown

import (
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

// Tracker remembers when each label was last accepted.
type Tracker struct {
	window time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
	unknown  uint64
}

// New returns a tracker with the given window. Negative windows are treated
// as zero.
func New(window time.Duration) *Tracker {
	return &Tracker{
		window:   max(window, 0),
		lastSeen: make(map[string]time.Time),
	}
}

func (t *Tracker) Window() time.Duration { return t.window }

// Accept reports whether an event for label at time at should be emitted,
// recording it if so. Unknown faces are counted and never accepted.
func (t *Tracker) Accept(label string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if label == facematch.UnknownLabel {
		t.unknown++
		return false
	}

	if last, ok := t.lastSeen[label]; ok && at.Sub(last) < t.window {
		return false
	}
	t.lastSeen[label] = at
	return true
}

// LastSeen returns the last accepted time for label.
func (t *Tracker) LastSeen(label string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastSeen[label]
	return last, ok
}

// Unknown returns how many unknown faces were rejected.
func (t *Tracker) Unknown() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unknown
}

// Seen returns the number of labels being tracked.
func (t *Tracker) Seen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSeen)
}

// Reset forgets every label. The unknown counter is kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.lastSeen)
}
