package cooldown

import (
	"testing"
	"time"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestAcceptWindow(t *testing.T) {
	tr := New(30 * time.Second)

	steps := []struct {
		label  string
		offset time.Duration
		want   bool
	}{
		{"alice", 0, true},
		{"alice", 5 * time.Second, false},
		{"bob", 5 * time.Second, true},
		{"alice", 29 * time.Second, false},
		{"alice", 30 * time.Second, true},
		{"alice", 31 * time.Second, false},
		{"alice", 60 * time.Second, true},
	}

	for i, s := range steps {
		if got := tr.Accept(s.label, t0.Add(s.offset)); got != s.want {
			t.Errorf("step %d: Accept(%q, +%v) = %v, want %v", i, s.label, s.offset, got, s.want)
		}
	}

	last, ok := tr.LastSeen("alice")
	if !ok || !last.Equal(t0.Add(60*time.Second)) {
		t.Errorf("LastSeen(alice) = %v, %v", last, ok)
	}
	if tr.Seen() != 2 {
		t.Errorf("Seen() = %d, want 2", tr.Seen())
	}
}

func TestAcceptDroppedEventKeepsState(t *testing.T) {
	tr := New(10 * time.Second)
	tr.Accept("alice", t0)
	tr.Accept("alice", t0.Add(9*time.Second))

	if !tr.Accept("alice", t0.Add(10*time.Second)) {
		t.Error("suppressed event must not extend the window")
	}
}

func TestUnknownNeverTracked(t *testing.T) {
	tr := New(time.Second)
	for i := range 3 {
		if tr.Accept(facematch.UnknownLabel, t0.Add(time.Duration(i)*time.Hour)) {
			t.Fatal("unknown label accepted")
		}
	}
	if tr.Unknown() != 3 {
		t.Errorf("Unknown() = %d, want 3", tr.Unknown())
	}
	if tr.Seen() != 0 {
		t.Errorf("Seen() = %d, want 0", tr.Seen())
	}
}

func TestZeroWindowAcceptsEverything(t *testing.T) {
	tr := New(-time.Second)
	if tr.Window() != 0 {
		t.Fatalf("Window() = %v, want 0", tr.Window())
	}
	for range 3 {
		if !tr.Accept("alice", t0) {
			t.Fatal("zero window rejected an event")
		}
	}
}

func TestReset(t *testing.T) {
	tr := New(time.Minute)
	tr.Accept("alice", t0)
	tr.Accept(facematch.UnknownLabel, t0)
	tr.Reset()

	if tr.Seen() != 0 {
		t.Errorf("Seen() = %d after Reset, want 0", tr.Seen())
	}
	if tr.Unknown() != 1 {
		t.Errorf("Unknown() = %d after Reset, want 1", tr.Unknown())
	}
	if !tr.Accept("alice", t0.Add(time.Second)) {
		t.Error("label rejected after Reset")
	}
}
