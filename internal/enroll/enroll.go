// Package enroll registers new identities into the gallery and the member
// store.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/frames"
	"github.com/kozaktomas/rollcall/internal/gallery"
)

const imageQuality = 95

var (
	// ErrNoFace is returned when the image contains no detectable face.
	ErrNoFace = errors.New("no face detected")
	// ErrInvalidProfile is returned for profiles missing a name or carrying
	// an unsupported gender value.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile describes the person being registered. Only Label is required.
type Profile struct {
	Label    string
	Email    string
	Gender   string // M, F or empty
	AgeGroup string
}

func (p Profile) validate() error {
	label := strings.TrimSpace(p.Label)
	if label == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if label == facematch.UnknownLabel {
		return fmt.Errorf("%w: %q is reserved for unrecognized faces", ErrInvalidProfile, facematch.UnknownLabel)
	}
	switch p.Gender {
	case "", "M", "F":
	default:
		return fmt.Errorf("%w: gender must be M or F, got %q", ErrInvalidProfile, p.Gender)
	}
	return nil
}

// Conflict is an existing identity the new face already matches.
type Conflict struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
	Source   string  `json:"source"` // gallery or members
}

// Result describes a registered face.
type Result struct {
	Label     string        `json:"label"`
	ImagePath string        `json:"image_path"`
	Faces     int           `json:"faces"`
	Ambiguous bool          `json:"ambiguous"`
	Box       facematch.Box `json:"box"`
	Conflicts []Conflict    `json:"conflicts,omitempty"`
	MemberID  *int64        `json:"member_id,omitempty"`
}

type Options struct {
	Detector   facematch.Detector
	Gallery    *gallery.Gallery
	DatasetDir string // where captures are stored

	// ValidationTolerance enables the duplicate check against existing
	// identities. Zero disables it.
	ValidationTolerance float64

	Members database.MemberWriter        // optional
	Nearest database.NearestMemberFinder // optional

	Now    func() time.Time
	Logger *slog.Logger
}

// Enroller registers faces.
type Enroller struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) (*Enroller, error) {
	if opts.Detector == nil || opts.Gallery == nil {
		return nil, errors.New("enroll: detector and gallery are required")
	}
	if opts.DatasetDir == "" {
		opts.DatasetDir = "dataset"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Enroller{opts: opts, log: opts.Logger}, nil
}

// Capture registers the first face in img under p. The image is stored in
// the dataset directory and referenced from the gallery record.
func (e *Enroller) Capture(ctx context.Context, p Profile, img image.Image) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	det, res, err := e.detect(ctx, p.Label, img)
	if err != nil {
		return nil, err
	}

	path := e.capturePath(p.Label)
	if err := frames.EncodeJPEG(path, img, imageQuality); err != nil {
		return nil, fmt.Errorf("failed to save capture: %w", err)
	}
	res.ImagePath = path

	if err := e.register(ctx, p, det, res); err != nil {
		return nil, err
	}
	return res, nil
}

// EnrollFile registers the first face found in an existing image file. The
// file is referenced in place.
func (e *Enroller) EnrollFile(ctx context.Context, p Profile, path string) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	img, err := frames.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	det, res, err := e.detect(ctx, p.Label, img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.ImagePath = path

	if err := e.register(ctx, p, det, res); err != nil {
		return nil, err
	}
	return res, nil
}

// EnrollFileAll registers every face found in an existing image file. The
// first face keeps p, later faces get a bare profile labeled by FaceLabel.
func (e *Enroller) EnrollFileAll(ctx context.Context, p Profile, path string) ([]*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	img, err := frames.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	detections, err := e.opts.Detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%s: face detection failed: %w", path, err)
	}
	if len(detections) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoFace)
	}

	results := make([]*Result, 0, len(detections))
	for i, det := range detections {
		fp := p
		if i > 0 {
			fp = Profile{Label: FaceLabel(p.Label, i)}
		}
		res := &Result{Label: fp.Label, ImagePath: path, Faces: len(detections), Box: det.Box}
		if err := e.register(ctx, fp, det, res); err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// FaceLabel is the label of the index-th face of an image labeled label.
// The first face keeps the label.
func FaceLabel(label string, index int) string {
	if index <= 0 {
		return label
	}
	return fmt.Sprintf("%s_%d", label, index)
}

func (e *Enroller) detect(ctx context.Context, label string, img image.Image) (facematch.Detection, *Result, error) {
	detections, err := e.opts.Detector.Detect(ctx, img)
	if err != nil {
		return facematch.Detection{}, nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(detections) == 0 {
		return facematch.Detection{}, nil, ErrNoFace
	}

	det := detections[0]
	res := &Result{
		Label:     label,
		Faces:     len(detections),
		Ambiguous: len(detections) > 1,
		Box:       det.Box,
	}
	if res.Ambiguous {
		e.log.Warn("multiple faces detected, using the first", "label", label, "faces", len(detections))
	}
	return det, res, nil
}

// register runs the duplicate check, appends the gallery record and
// inserts the member. A member store failure is logged; the gallery record
// is kept.
func (e *Enroller) register(ctx context.Context, p Profile, det facematch.Detection, res *Result) error {
	res.Conflicts = e.conflicts(ctx, p.Label, det.Vector)
	for _, c := range res.Conflicts {
		e.log.Warn("face already registered under another name",
			"label", p.Label, "existing", c.Label, "distance", c.Distance, "source", c.Source)
	}

	rec := gallery.Record{Label: p.Label, SourcePath: res.ImagePath, Vector: det.Vector}
	if err := e.opts.Gallery.Append(rec); err != nil {
		return fmt.Errorf("failed to append to gallery: %w", err)
	}

	if e.opts.Members != nil {
		id, err := e.opts.Members.InsertMember(ctx, database.Member{
			Name:     p.Label,
			Email:    p.Email,
			Gender:   p.Gender,
			AgeGroup: p.AgeGroup,
			Encoding: det.Vector,
			IsActive: true,
		})
		if err != nil {
			e.log.Warn("failed to insert member", "label", p.Label, "error", err)
		} else {
			res.MemberID = &id
		}
	}

	e.log.Info("face registered", "label", p.Label, "image", res.ImagePath, "gallery_size", e.opts.Gallery.Size())
	return nil
}

func (e *Enroller) conflicts(ctx context.Context, label string, v facematch.Vector) []Conflict {
	tol := e.opts.ValidationTolerance
	if tol <= 0 {
		return nil
	}
	key := facematch.NormalizeLabel(label)

	var out []Conflict
	match := facematch.Match(v, e.opts.Gallery.Snapshot(), tol)
	if match.Known() && facematch.NormalizeLabel(match.Label) != key {
		out = append(out, Conflict{Label: match.Label, Distance: match.Distance, Source: "gallery"})
	}

	if e.opts.Nearest != nil {
		m, dist, err := e.opts.Nearest.NearestMember(ctx, v)
		switch {
		case err != nil:
			e.log.Warn("member duplicate check failed", "error", err)
		case m != nil && dist <= tol && facematch.NormalizeLabel(m.Name) != key:
			out = append(out, Conflict{Label: m.Name, Distance: dist, Source: "members"})
		}
	}
	return out
}

func (e *Enroller) capturePath(label string) string {
	name := fmt.Sprintf("%s_%s.jpg", e.opts.Now().Format("20060102_150405"), uuid.NewString()[:8])
	return filepath.Join(e.opts.DatasetDir, labelDir(label), name)
}

// labelDir turns a label into a single path element.
func labelDir(label string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_")
	dir := strings.TrimSpace(r.Replace(label))
	if dir == "" || dir == "." || dir == ".." {
		return "_"
	}
	return dir
}
