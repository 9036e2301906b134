package facematch

import (
	"image"
	"math"
)

// Box is a face bounding box in pixels, stored as (top, right, bottom, left).
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// BoxFromCorners converts a pixel bbox [x1, y1, x2, y2] to a Box.
func BoxFromCorners(bbox []float64) (Box, bool) {
	if len(bbox) != 4 {
		return Box{}, false
	}
	return Box{
		Top:    roundInt(bbox[1]),
		Right:  roundInt(bbox[2]),
		Bottom: roundInt(bbox[3]),
		Left:   roundInt(bbox[0]),
	}, true
}

// Scale multiplies every coordinate by f and rounds to the nearest pixel.
func (b Box) Scale(f float64) Box {
	return Box{
		Top:    roundInt(float64(b.Top) * f),
		Right:  roundInt(float64(b.Right) * f),
		Bottom: roundInt(float64(b.Bottom) * f),
		Left:   roundInt(float64(b.Left) * f),
	}
}

func (b Box) Width() int { return b.Right - b.Left }
func (b Box) Height() int { return b.Bottom - b.Top }

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

func roundInt(f float64) int {
	return int(math.Round(f))
}
