package frames

import (
	"image"
	"math"
	"testing"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

func TestNewSchedulerClamps(t *testing.T) {
	tests := []struct {
		name      string
		scale     float64
		frameSkip int
		wantScale float64
		wantSkip  int
	}{
		{"defaults", 0.25, 2, 0.25, 2},
		{"scale too small", 0.01, 1, MinScale, 1},
		{"scale too large", 3, 1, MaxScale, 1},
		{"zero skip", 0.5, 0, 0.5, 1},
		{"negative skip", 0.5, -4, 0.5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(tt.scale, tt.frameSkip)
			if s.Scale() != tt.wantScale {
				t.Errorf("Scale() = %v, want %v", s.Scale(), tt.wantScale)
			}
			if s.FrameSkip() != tt.wantSkip {
				t.Errorf("FrameSkip() = %d, want %d", s.FrameSkip(), tt.wantSkip)
			}
		})
	}
}

func TestShouldProcess(t *testing.T) {
	s := NewScheduler(0.25, 3)
	var processed []int
	for i := range 10 {
		if s.ShouldProcess(i) {
			processed = append(processed, i)
		}
	}
	want := []int{0, 3, 6, 9}
	if len(processed) != len(want) {
		t.Fatalf("processed %v, want %v", processed, want)
	}
	for i := range want {
		if processed[i] != want[i] {
			t.Errorf("processed %v, want %v", processed, want)
		}
	}

	every := NewScheduler(0.25, 1)
	for i := range 5 {
		if !every.ShouldProcess(i) {
			t.Errorf("frame %d skipped with frameSkip 1", i)
		}
	}
}

func TestToWorkingResolution(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))

	got := NewScheduler(0.25, 1).ToWorkingResolution(img)
	if got.Bounds().Dx() != 160 || got.Bounds().Dy() != 120 {
		t.Errorf("working size = %v, want 160x120", got.Bounds())
	}

	if same := NewScheduler(1, 1).ToWorkingResolution(img); same != image.Image(img) {
		t.Error("scale 1.0 should return the input image")
	}

	tiny := image.NewRGBA(image.Rect(0, 0, 3, 3))
	if got := NewScheduler(0.1, 1).ToWorkingResolution(tiny); got.Bounds().Dx() < 1 || got.Bounds().Dy() < 1 {
		t.Errorf("tiny image scaled to empty bounds %v", got.Bounds())
	}
}

func TestToOriginalExample(t *testing.T) {
	s := NewScheduler(0.25, 1)
	got := s.ToOriginal(facematch.Box{Top: 10, Right: 20, Bottom: 30, Left: 5})
	want := facematch.Box{Top: 40, Right: 80, Bottom: 120, Left: 20}
	if got != want {
		t.Errorf("ToOriginal() = %+v, want %+v", got, want)
	}
}

func TestCoordinateRoundTrip(t *testing.T) {
	for _, scale := range []float64{0.1, 0.25, 0.3, 0.5, 0.75, 0.9, 1.0} {
		s := NewScheduler(scale, 1)
		bound := 0.5/scale + 0.5

		for v := 0; v < 500; v += 7 {
			working := facematch.Box{Top: v, Right: v + 3, Bottom: v + 11, Left: v / 2}
			if got := s.ToWorking(s.ToOriginal(working)); got != working {
				t.Errorf("scale %v: ToWorking(ToOriginal(%+v)) = %+v", scale, working, got)
			}

			original := facematch.Box{Top: v, Right: v + 13, Bottom: v + 29, Left: v + 1}
			back := s.ToOriginal(s.ToWorking(original))
			for _, d := range []int{
				back.Top - original.Top,
				back.Right - original.Right,
				back.Bottom - original.Bottom,
				back.Left - original.Left,
			} {
				if math.Abs(float64(d)) > bound {
					t.Errorf("scale %v: round trip of %+v drifted to %+v", scale, original, back)
					break
				}
			}
		}
	}
}
