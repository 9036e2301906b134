package facematch

import (
	"math"
	"testing"
)

type candidates []struct {
	label string
	v     Vector
}

func (c candidates) Len() int { return len(c) }
func (c candidates) At(i int) (string, Vector) { return c[i].label, c[i].v }

func TestMatch(t *testing.T) {
	gallery := candidates{
		{"alice", Vector{0, 0, 0}},
		{"bob", Vector{1, 0, 0}},
		{"alice", Vector{0, 0.1, 0}},
	}

	tests := []struct {
		name      string
		query     Vector
		tolerance float64
		label     string
		distance  float64
	}{
		{
			name:      "exact match",
			query:     Vector{0, 0, 0},
			tolerance: 0.6,
			label:     "alice",
			distance:  0,
		},
		{
			name:      "nearest wins",
			query:     Vector{0.9, 0, 0},
			tolerance: 0.6,
			label:     "bob",
			distance:  0.1,
		},
		{
			name:      "rejected keeps true distance",
			query:     Vector{0, 0, 2},
			tolerance: 0.6,
			label:     UnknownLabel,
			distance:  2,
		},
		{
			name:      "distance equal to tolerance is accepted",
			query:     Vector{1, 0, 0.5},
			tolerance: 0.5,
			label:     "bob",
			distance:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.query, gallery, tt.tolerance)
			if got.Label != tt.label {
				t.Errorf("label = %q, want %q", got.Label, tt.label)
			}
			if math.Abs(got.Distance-tt.distance) > 1e-9 {
				t.Errorf("distance = %v, want %v", got.Distance, tt.distance)
			}
			if got.Confidence != Confidence(got.Distance) {
				t.Errorf("confidence = %v, want %v", got.Confidence, Confidence(got.Distance))
			}
		})
	}
}

func TestMatchTieGoesToFirst(t *testing.T) {
	gallery := candidates{
		{"first", Vector{1, 0}},
		{"second", Vector{-1, 0}},
	}
	got := Match(Vector{0, 0}, gallery, 1.0)
	if got.Label != "first" {
		t.Errorf("label = %q, want first", got.Label)
	}
}

func TestMatchEmptyGallery(t *testing.T) {
	for _, c := range []Candidates{nil, candidates{}} {
		got := Match(Vector{0.1, 0.2}, c, 0.6)
		if got.Label != UnknownLabel {
			t.Errorf("label = %q, want %q", got.Label, UnknownLabel)
		}
		if got.Distance != 1.0 {
			t.Errorf("distance = %v, want exactly 1.0", got.Distance)
		}
		if got.Confidence != 0 {
			t.Errorf("confidence = %v, want 0", got.Confidence)
		}
	}
}

func TestMatchDimensionMismatch(t *testing.T) {
	gallery := candidates{
		{"short", Vector{0, 0}},
		{"ok", Vector{0, 0, 0.3}},
	}
	got := Match(Vector{0, 0, 0}, gallery, 0.6)
	if got.Label != "ok" {
		t.Errorf("label = %q, want ok", got.Label)
	}

	incomparable := candidates{
		{"short", Vector{0, 0}},
		{"long", Vector{0, 0, 0, 0}},
	}
	got = Match(Vector{0, 0, 0}, incomparable, 0.6)
	if got.Known() {
		t.Errorf("label = %q, want %q", got.Label, UnknownLabel)
	}
	if !math.IsInf(got.Distance, 1) {
		t.Errorf("distance = %v, want +Inf when no record is comparable", got.Distance)
	}
	if got.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", got.Confidence)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		distance float64
		expected float64
	}{
		{0, 1},
		{0.25, 0.75},
		{1, 0},
		{2, 0},
		{-0.5, 1},
	}

	for _, tt := range tests {
		if got := Confidence(tt.distance); math.Abs(got-tt.expected) > 1e-12 {
			t.Errorf("Confidence(%v) = %v, want %v", tt.distance, got, tt.expected)
		}
	}
}

func TestConfidenceMonotonic(t *testing.T) {
	prev := Confidence(0)
	for d := 0.01; d < 3; d += 0.01 {
		c := Confidence(d)
		if c > prev {
			t.Fatalf("Confidence(%v) = %v increased from %v", d, c, prev)
		}
		prev = c
	}
}
