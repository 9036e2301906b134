package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"
)

// ErrCaptureFailed is returned when a source stops yielding frames for any
// reason other than reaching its end.
var ErrCaptureFailed = errors.New("frame capture failed")

// Source yields decoded frames in order. Next returns io.EOF at the end of
// the stream.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

var supportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// IsSupportedImage reports whether path has an image extension we can decode.
func IsSupportedImage(path string) bool {
	return slices.Contains(supportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// DecodeFile reads and decodes a JPEG, PNG or BMP image.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// EncodeJPEG writes img as a JPEG file, creating parent directories.
func EncodeJPEG(path string, img image.Image, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return f.Close()
}
