// Package gallery stores the enrolled face vectors and their labels in a
// CSV file with columns label, file_path and encoding.
package gallery

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

// Snapshot is an immutable, ordered view of the gallery records.
type Snapshot []Record

func (s Snapshot) Len() int { return len(s) }

func (s Snapshot) At(i int) (string, facematch.Vector) {
	return s[i].Label, s[i].Vector
}

// Gallery is a file-backed set of records. Matching always works on a whole
// snapshot; Append and Reload publish a new one.
type Gallery struct {
	path string
	log  *slog.Logger

	mu      sync.RWMutex
	records Snapshot

	writeMu sync.Mutex
}

// Load reads the gallery at path. A missing file yields an empty gallery.
func Load(path string, logger *slog.Logger) (*Gallery, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gallery{path: path, log: logger.With("gallery", path)}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload re-reads the backing file and swaps in the new snapshot. On error
// the previous snapshot stays in place.
func (g *Gallery) Reload() error {
	records, err := ReadFile(g.path)
	if errors.Is(err, ErrMissing) {
		g.log.Warn("gallery file not found, starting with an empty gallery")
		records = []Record{}
	} else if err != nil {
		return err
	}

	g.mu.Lock()
	g.records = records
	g.mu.Unlock()

	g.log.Info("gallery loaded", "records", len(records))
	return nil
}

// Append persists rec at the end of the backing file and then makes it
// visible to matching.
func (g *Gallery) Append(rec Record) error {
	fields, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if dim := g.Dim(); dim != 0 && len(rec.Vector) != dim {
		return fmt.Errorf("%w: encoding has %d values, gallery uses %d", ErrInvalidRecord, len(rec.Vector), dim)
	}

	if err := g.appendRow(fields); err != nil {
		return err
	}

	g.mu.Lock()
	next := make(Snapshot, len(g.records), len(g.records)+1)
	copy(next, g.records)
	g.records = append(next, rec)
	size := len(g.records)
	g.mu.Unlock()

	g.log.Debug("gallery record appended", "label", rec.Label, "records", size)
	return nil
}

func (g *Gallery) appendRow(fields []string) error {
	if dir := filepath.Dir(g.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create gallery directory: %w", err)
		}
	}

	f, err := os.OpenFile(g.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open gallery for append: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat gallery: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := cw.Write(fields); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync gallery: %w", err)
	}
	return nil
}

// Snapshot returns the current records. The result must not be modified.
func (g *Gallery) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.records
}

func (g *Gallery) Path() string { return g.path }

func (g *Gallery) Size() int { return len(g.Snapshot()) }

func (g *Gallery) IsEmpty() bool { return g.Size() == 0 }

// Dim returns the vector length used by the gallery, or 0 when empty.
func (g *Gallery) Dim() int {
	s := g.Snapshot()
	if len(s) == 0 {
		return 0
	}
	return len(s[0].Vector)
}

// Labels returns the distinct labels in sorted order.
func (g *Gallery) Labels() []string {
	counts := g.Counts()
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// Counts returns the number of records per label.
func (g *Gallery) Counts() map[string]int {
	counts := make(map[string]int)
	for _, rec := range g.Snapshot() {
		counts[rec.Label]++
	}
	return counts
}

// Stage returns an empty gallery backed by a new temporary file next to
// target. Commit makes its records the contents of target; Discard drops
// them.
func Stage(target string, logger *slog.Logger) (*Gallery, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create gallery directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".gallery-staging-*.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging gallery: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to create staging gallery: %w", err)
	}
	return &Gallery{
		path:    f.Name(),
		log:     logger.With("gallery", f.Name(), "target", target),
		records: Snapshot{},
	}, nil
}

// Commit atomically replaces the gallery file at target with the current
// records and removes the backing file.
func (g *Gallery) Commit(target string) error {
	g.writeMu.Lock()
	err := Save(target, g.Snapshot())
	g.writeMu.Unlock()
	if err != nil {
		return err
	}
	g.log.Info("gallery replaced", "records", g.Size())
	return g.Discard()
}

// Discard removes the backing file. A missing file is not an error.
func (g *Gallery) Discard() error {
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", g.path, err)
	}
	return nil
}
