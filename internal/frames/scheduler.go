// Package frames selects which camera frames get processed, maps between the
// working and original resolutions and provides frame sources.
package frames

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

const (
	MinScale = 0.1
	MaxScale = 1.0
)

// Scheduler decides which frames are analyzed and at what resolution.
type Scheduler struct {
	scale     float64
	frameSkip int
}

// NewScheduler clamps scale into [MinScale, MaxScale] and frameSkip to at
// least 1.
func NewScheduler(scale float64, frameSkip int) *Scheduler {
	if math.IsNaN(scale) {
		scale = MaxScale
	}
	return &Scheduler{
		scale:     min(max(scale, MinScale), MaxScale),
		frameSkip: max(frameSkip, 1),
	}
}

func (s *Scheduler) Scale() float64 { return s.scale }

func (s *Scheduler) FrameSkip() int { return s.frameSkip }

// ShouldProcess reports whether the frame at frameIndex is analyzed.
func (s *Scheduler) ShouldProcess(frameIndex int) bool {
	return frameIndex%s.frameSkip == 0
}

// ToWorkingResolution downscales img by the scheduler's scale factor.
func (s *Scheduler) ToWorkingResolution(img image.Image) image.Image {
	if s.scale == MaxScale {
		return img
	}

	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*s.scale)))
	h := max(1, int(math.Round(float64(b.Dy())*s.scale)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ToOriginal maps a box found in a working-resolution frame back onto the
// original frame.
func (s *Scheduler) ToOriginal(box facematch.Box) facematch.Box {
	return box.Scale(1 / s.scale)
}

// ToWorking maps a box in original coordinates onto the working frame.
func (s *Scheduler) ToWorking(box facematch.Box) facematch.Box {
	return box.Scale(s.scale)
}
