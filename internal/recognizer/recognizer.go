// Package recognizer runs the per-frame pipeline: schedule, detect, match,
// dedup and dispatch.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/cooldown"
	"github.com/kozaktomas/rollcall/internal/dispatch"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/frames"
	"github.com/kozaktomas/rollcall/internal/gallery"
)

// EventSink receives accepted identity events.
type EventSink interface {
	Dispatch(event dispatch.Event)
}

// Members resolves labels to member IDs.
type Members interface {
	Lookup(label string) *int64
	Refresh(ctx context.Context) error
}

// Recognition is one face seen in a processed frame.
type Recognition struct {
	facematch.MatchResult
	Box     facematch.Box `json:"box"` // original resolution
	Emitted bool          `json:"emitted"`
}

type Options struct {
	Scheduler *frames.Scheduler
	Detector  facematch.Detector
	Gallery   *gallery.Gallery
	Cooldown  *cooldown.Tracker
	Events    EventSink // nil discards events
	Members   Members   // optional
	Tolerance float64

	Now           func() time.Time      // defaults to time.Now
	OnRecognition func(int, Recognition) // optional, called for every face with the frame index
	Logger        *slog.Logger
}

// Stats contains pipeline counters
type Stats struct {
	Frames      uint64 `json:"frames"`
	Processed   uint64 `json:"processed"`
	Faces       uint64 `json:"faces"`
	Recognized  uint64 `json:"recognized"`
	Emitted     uint64 `json:"emitted"`
	Unknown     uint64 `json:"unknown"`
	Errors      uint64 `json:"detection_errors"`
	GallerySize int    `json:"gallery_size"`
	Tracked     int    `json:"tracked_labels"`
}

// Pipeline processes frames one at a time. Tick and Reload may be called
// from different goroutines.
type Pipeline struct {
	opts Options
	log  *slog.Logger

	// mu serializes match+dedup against Reload.
	mu    sync.Mutex
	stats Stats
}

// New validates opts and creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Scheduler == nil || opts.Detector == nil || opts.Gallery == nil || opts.Cooldown == nil {
		return nil, errors.New("recognizer: scheduler, detector, gallery and cooldown are required")
	}
	if opts.Tolerance <= 0 {
		return nil, fmt.Errorf("recognizer: tolerance must be positive, got %v", opts.Tolerance)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{opts: opts, log: opts.Logger}, nil
}

// Tick handles frame idx. Skipped frames return nil without calling the
// detector. Faces are matched and dispatched in detector order.
func (p *Pipeline) Tick(ctx context.Context, idx int, img image.Image) ([]Recognition, error) {
	p.mu.Lock()
	p.stats.Frames++
	p.mu.Unlock()

	if !p.opts.Scheduler.ShouldProcess(idx) {
		return nil, nil
	}

	working := p.opts.Scheduler.ToWorkingResolution(img)
	detections, err := p.opts.Detector.Detect(ctx, working)
	if err != nil {
		p.mu.Lock()
		p.stats.Errors++
		p.mu.Unlock()
		return nil, fmt.Errorf("frame %d: %w", idx, err)
	}

	now := p.opts.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Processed++

	snapshot := p.opts.Gallery.Snapshot()
	results := make([]Recognition, 0, len(detections))
	for _, det := range detections {
		match := facematch.Match(det.Vector, snapshot, p.opts.Tolerance)
		rec := Recognition{
			MatchResult: match,
			Box:         p.opts.Scheduler.ToOriginal(det.Box),
		}
		p.stats.Faces++
		if match.Known() {
			p.stats.Recognized++
		}

		if p.opts.Cooldown.Accept(match.Label, now) {
			rec.Emitted = true
			p.stats.Emitted++
			p.emit(match, now)
		}

		p.log.Debug("face matched",
			"frame", idx,
			"label", match.Label,
			"distance", match.Distance,
			"confidence", match.Confidence,
			"emitted", rec.Emitted,
		)
		if p.opts.OnRecognition != nil {
			p.opts.OnRecognition(idx, rec)
		}
		results = append(results, rec)
	}
	return results, nil
}

func (p *Pipeline) emit(match facematch.MatchResult, at time.Time) {
	event := dispatch.Event{
		Label:      match.Label,
		Confidence: match.Confidence,
		Timestamp:  at,
		Status:     dispatch.StatusPresent,
	}
	if p.opts.Members != nil {
		event.MemberID = p.opts.Members.Lookup(match.Label)
	}
	p.log.Info("identity recognized", "label", match.Label, "confidence", match.Confidence)
	if p.opts.Events != nil {
		p.opts.Events.Dispatch(event)
	}
}

// Run reads frames from src until the stream ends or ctx is cancelled.
// Detection errors are logged and the frame is skipped. A capture failure
// stops the loop and is returned. src is closed before Run returns.
func (p *Pipeline) Run(ctx context.Context, src frames.Source) error {
	defer func() {
		if err := src.Close(); err != nil {
			p.log.Warn("failed to close frame source", "error", err)
		}
	}()

	p.log.Info("recognition started",
		"gallery_size", p.opts.Gallery.Size(),
		"tolerance", p.opts.Tolerance,
		"scale", p.opts.Scheduler.Scale(),
		"frame_skip", p.opts.Scheduler.FrameSkip(),
	)

	for idx := 0; ; idx++ {
		if ctx.Err() != nil {
			p.log.Info("recognition stopped", "frames", idx)
			return nil
		}

		img, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				p.log.Info("frame source exhausted", "frames", idx)
				return nil
			case ctx.Err() != nil:
				p.log.Info("recognition stopped", "frames", idx)
				return nil
			default:
				return fmt.Errorf("frame %d: %w", idx, err)
			}
		}

		if _, err := p.Tick(ctx, idx, img); err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.Warn("detection failed, skipping frame", "frame", idx, "error", err)
		}
	}
}

// Reload re-reads the gallery, refreshes the member cache and clears the
// cooldown state. On a gallery error nothing else changes.
func (p *Pipeline) Reload(ctx context.Context) error {
	if err := p.opts.Gallery.Reload(); err != nil {
		return err
	}
	if p.opts.Members != nil {
		if err := p.opts.Members.Refresh(ctx); err != nil {
			p.log.Warn("member refresh failed, keeping cached members", "error", err)
		}
	}

	p.mu.Lock()
	p.opts.Cooldown.Reset()
	p.mu.Unlock()

	p.log.Info("gallery reloaded", "size", p.opts.Gallery.Size())
	return nil
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	st := p.stats
	p.mu.Unlock()

	st.Unknown = p.opts.Cooldown.Unknown()
	st.GallerySize = p.opts.Gallery.Size()
	st.Tracked = p.opts.Cooldown.Seen()
	return st
}

// Gallery returns the gallery the pipeline matches against.
func (p *Pipeline) Gallery() *gallery.Gallery { return p.opts.Gallery }
