package gallery

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

var (
	// ErrCorrupt is returned when a gallery file cannot be parsed.
	ErrCorrupt = errors.New("gallery file is corrupt")
	// ErrMissing is returned by ReadFile when the gallery file does not exist.
	ErrMissing = errors.New("gallery file not found")
	// ErrInvalidRecord is returned when a record cannot be stored.
	ErrInvalidRecord = errors.New("invalid gallery record")
)

var header = []string{"label", "file_path", "encoding"}

// Record pairs a label with one enrolled feature vector.
type Record struct {
	Label      string           `json:"label"`
	SourcePath string           `json:"file_path"`
	Vector     facematch.Vector `json:"-"`
}

// Read parses gallery rows from r. Any malformed row fails the whole read.
func Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if !slices.Equal(first, header) {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrCorrupt, first)
	}

	records := []Record{}
	dim := 0
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrCorrupt, row, err)
		}
		if len(fields) != len(header) {
			return nil, fmt.Errorf("%w: row %d: expected %d fields, got %d", ErrCorrupt, row, len(header), len(fields))
		}

		vec, err := decodeVector(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrCorrupt, row, err)
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("%w: row %d: encoding has %d values, previous rows have %d", ErrCorrupt, row, len(vec), dim)
		}

		records = append(records, Record{
			Label:      fields[0],
			SourcePath: fields[1],
			Vector:     vec,
		})
	}
	return records, nil
}

// ReadFile reads a gallery file. A missing file yields ErrMissing.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("failed to open gallery: %w", err)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Write encodes records to w, preceded by the header row if withHeader is set.
func Write(w io.Writer, records []Record, withHeader bool) error {
	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for i, rec := range records {
		fields, err := encodeRecord(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := cw.Write(fields); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes a complete gallery file, replacing path atomically.
func Save(path string, records []Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create gallery directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".gallery-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, records, true); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close gallery: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace gallery: %w", err)
	}
	return nil
}

func validateRecord(rec Record) error {
	if rec.Label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidRecord)
	}
	// a record under the unknown label could never be reported
	if strings.TrimSpace(rec.Label) == facematch.UnknownLabel {
		return fmt.Errorf("%w: label %q is reserved", ErrInvalidRecord, facematch.UnknownLabel)
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("%w: empty encoding", ErrInvalidRecord)
	}
	for _, f := range rec.Vector {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: encoding contains non-finite values", ErrInvalidRecord)
		}
	}
	return nil
}

func encodeRecord(rec Record) ([]string, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	enc, err := json.Marshal([]float64(rec.Vector))
	if err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}
	return []string{rec.Label, rec.SourcePath, string(enc)}, nil
}

func decodeVector(field string) (facematch.Vector, error) {
	var values []float64
	if err := json.Unmarshal([]byte(field), &values); err != nil {
		return nil, fmt.Errorf("encoding is not a JSON number array: %v", err)
	}
	if len(values) == 0 {
		return nil, errors.New("encoding is empty")
	}
	return facematch.Vector(values), nil
}
