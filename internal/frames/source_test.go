package frames

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSplitJPEG(t *testing.T) {
	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	stream := []byte{0x00, 0x00}
	stream = append(stream, jpegData...)
	stream = append(stream, 0x00, 0x00)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(SplitJPEG)

	if !scanner.Scan() {
		t.Fatal("expected a token, got EOF")
	}
	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("token = %X, want %X", scanner.Bytes(), jpegData)
	}
	if scanner.Scan() {
		t.Error("expected only one token")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("scanner error: %v", err)
	}
}

func TestSplitJPEGLongGarbage(t *testing.T) {
	stream := bytes.Repeat([]byte{0x42}, 10*bufio.MaxScanTokenSize)
	stream = append(stream, 0xFF, 0xD8, 0xAA, 0xFF, 0xD9)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(SplitJPEG)
	if !scanner.Scan() {
		t.Fatalf("expected a token, err = %v", scanner.Err())
	}
	if len(scanner.Bytes()) != 5 {
		t.Errorf("token length = %d, want 5", len(scanner.Bytes()))
	}
}

func TestMJPEGSource(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encodeTestJPEG(t, 32, 24))
	stream.Write([]byte("noise"))
	stream.Write(encodeTestJPEG(t, 16, 8))

	src := NewMJPEGSource(io.NopCloser(&stream))
	defer src.Close()

	ctx := context.Background()
	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if first.Bounds().Dx() != 32 {
		t.Errorf("first frame width = %d, want 32", first.Bounds().Dx())
	}

	second, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if second.Bounds().Dx() != 16 {
		t.Errorf("second frame width = %d, want 16", second.Bounds().Dx())
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestMJPEGSourceCorruptFrame(t *testing.T) {
	stream := []byte{0xFF, 0xD8, 0x00, 0x01, 0xFF, 0xD9}
	src := NewMJPEGSource(io.NopCloser(bytes.NewReader(stream)))

	if _, err := src.Next(context.Background()); !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("Next() error = %v, want ErrCaptureFailed", err)
	}
}

func TestMJPEGSourceCancelled(t *testing.T) {
	src := NewMJPEGSource(io.NopCloser(bytes.NewReader(encodeTestJPEG(t, 4, 4))))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestFFmpegArgs(t *testing.T) {
	got := FFmpegArgs("/dev/video0", FFmpegOptions{InputFormat: "v4l2", FPS: 10})
	want := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2", "-i", "/dev/video0",
		"-vf", "fps=10",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-",
	}
	if len(got) != len(want) {
		t.Fatalf("FFmpegArgs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FFmpegArgs() = %v, want %v", got, want)
		}
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.JPG", "notes.txt"} {
		data := encodeTestJPEG(t, 8, 8)
		if name == "notes.txt" {
			data = []byte("hello")
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	src, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir() error: %v", err)
	}
	if src.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", src.Len())
	}

	ctx := context.Background()
	for range 2 {
		if _, err := src.Next(ctx); err != nil {
			t.Fatalf("Next() error: %v", err)
		}
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestDirSourceErrors(t *testing.T) {
	if _, err := OpenDir(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("OpenDir() error = %v, want ErrCaptureFailed", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := OpenDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("Next() error = %v, want ErrCaptureFailed", err)
	}
}

func TestIsSupportedImage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.jpg", true},
		{"a.JPEG", true},
		{"dir/a.png", true},
		{"a.bmp", true},
		{"a.gif", false},
		{"a", false},
	}
	for _, tt := range tests {
		if got := IsSupportedImage(tt.path); got != tt.want {
			t.Errorf("IsSupportedImage(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
