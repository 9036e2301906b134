// Package facematch provides the face matching primitives shared between the
// recognizer, the registration flows and the CLI.
package facematch

import (
	"context"
	"image"
)

// UnknownLabel is reported for faces that do not match any gallery record.
const UnknownLabel = "Unknown"

// Vector is a face feature vector produced by a detector. Vectors are never
// mutated after they are produced.
type Vector []float64

// Detection is a single face found in an image.
type Detection struct {
	Box    Box
	Vector Vector
	Score  float64
}

// Detector finds faces in an image and extracts their feature vectors.
// An image without faces yields an empty slice and a nil error.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// MatchResult is the outcome of classifying a vector against a gallery.
type MatchResult struct {
	Label      string  `json:"label"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// Known reports whether the result names a gallery identity.
func (r MatchResult) Known() bool {
	return r.Label != UnknownLabel
}
