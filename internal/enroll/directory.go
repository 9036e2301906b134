package enroll

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/rollcall/internal/fingerprint"
	"github.com/kozaktomas/rollcall/internal/frames"
)

// DirectoryOptions controls batch enrollment.
type DirectoryOptions struct {
	// DuplicateThreshold skips images whose difference hash is within this
	// many bits of an image already enrolled under the same label. Zero
	// disables the check.
	DuplicateThreshold int
	DryRun             bool
	// AllFaces registers every face of an image instead of the first one.
	// Later faces are labeled by FaceLabel.
	AllFaces           bool
	Progress           *progressbar.ProgressBar // optional
}

// FileError is a per-image failure during batch enrollment.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

// DirectoryReport summarizes a batch enrollment.
type DirectoryReport struct {
	Files     int
	Enrolled  int
	Skipped   int // near-duplicate images
	Ambiguous int
	Conflicts int
	Labels    map[string]int
	Errors    []FileError
}

// Directory enrolls every supported image under dir. Images directly in dir
// are labeled by file stem, images in subdirectories by their parent
// directory name. Per-image failures are collected, not returned.
func (e *Enroller) Directory(ctx context.Context, dir string, opts DirectoryOptions) (*DirectoryReport, error) {
	files, err := collectImages(dir)
	if err != nil {
		return nil, err
	}

	report := &DirectoryReport{Files: len(files), Labels: map[string]int{}}
	if opts.Progress != nil {
		opts.Progress.ChangeMax(len(files))
	}
	hashes := map[string][]uint64{}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		e.enrollOne(ctx, dir, path, opts, hashes, report)
		if opts.Progress != nil {
			_ = opts.Progress.Add(1)
		}
	}
	if opts.Progress != nil {
		_ = opts.Progress.Finish()
	}

	e.log.Info("directory enrollment finished",
		"dir", dir,
		"files", report.Files,
		"enrolled", report.Enrolled,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (e *Enroller) enrollOne(ctx context.Context, root, path string, opts DirectoryOptions, hashes map[string][]uint64, report *DirectoryReport) {
	label := LabelFor(root, path)
	fail := func(err error) {
		report.Errors = append(report.Errors, FileError{Path: path, Err: err})
		e.log.Warn("failed to enroll image", "path", path, "error", err)
	}

	if opts.DuplicateThreshold > 0 {
		img, err := frames.DecodeFile(path)
		if err != nil {
			fail(err)
			return
		}
		h := fingerprint.DHash(img)
		for _, seen := range hashes[label] {
			if fingerprint.Similar(h, seen, opts.DuplicateThreshold) {
				report.Skipped++
				e.log.Debug("skipping near-duplicate image", "path", path, "hash", fingerprint.FormatHash(h))
				return
			}
		}
		hashes[label] = append(hashes[label], h)
	}

	if opts.DryRun {
		report.Enrolled++
		report.Labels[label]++
		return
	}

	var results []*Result
	var err error
	if opts.AllFaces {
		results, err = e.EnrollFileAll(ctx, Profile{Label: label}, path)
	} else {
		var res *Result
		res, err = e.EnrollFile(ctx, Profile{Label: label}, path)
		if res != nil {
			results = []*Result{res}
		}
	}
	if err != nil && len(results) == 0 {
		if errors.Is(err, context.Canceled) {
			return
		}
		fail(err)
		return
	}
	if err != nil {
		fail(err)
	}
	report.Enrolled++
	for _, res := range results {
		report.Labels[res.Label]++
		if res.Ambiguous {
			report.Ambiguous++
		}
		report.Conflicts += len(res.Conflicts)
	}
}

// LabelFor derives the label of an image found under root.
func LabelFor(root, path string) string {
	parent := filepath.Dir(path)
	if filepath.Clean(parent) == filepath.Clean(root) {
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Base(parent)
}

func collectImages(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if frames.IsSupportedImage(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
