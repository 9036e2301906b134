// Package fingerprint adapts the face embedding server to the detector
// interface and computes perceptual hashes of captured frames.
package fingerprint

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

const frameQuality = 90

// Detector implements facematch.Detector on top of the embedding server.
type Detector struct {
	client   *Client
	minScore float64
	log      *slog.Logger
}

// NewDetector wraps client. Detections scoring below minScore are dropped;
// zero keeps everything the server returns.
func NewDetector(client *Client, minScore float64, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{client: client, minScore: minScore, log: logger}
}

// Detect encodes img as JPEG, sends it to the server and converts the
// returned faces in server order. Boxes are in img pixel coordinates.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: frameQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	resp, err := d.client.EmbedFaces(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	origin := img.Bounds().Min
	detections := make([]facematch.Detection, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		if face.DetScore < d.minScore {
			continue
		}
		box, ok := facematch.BoxFromCorners(face.BBox)
		if !ok || len(face.Embedding) == 0 {
			d.log.Warn("skipping malformed face", "face_index", face.FaceIndex, "bbox", face.BBox)
			continue
		}
		box.Top += origin.Y
		box.Bottom += origin.Y
		box.Left += origin.X
		box.Right += origin.X

		detections = append(detections, facematch.Detection{
			Box:    box,
			Vector: toVector(face.Embedding),
			Score:  face.DetScore,
		})
	}
	return detections, nil
}

func toVector(embedding []float32) facematch.Vector {
	v := make(facematch.Vector, len(embedding))
	for i, x := range embedding {
		v[i] = float64(x)
	}
	return v
}

var _ facematch.Detector = (*Detector)(nil)
