package frames

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

const (
	initialFrameBuffer = 1 << 20
	maxFrameSize       = 64 << 20
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// SplitJPEG is a bufio.SplitFunc that yields the complete JPEG images found
// in a concatenated stream. Bytes outside SOI/EOI markers are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF, it may begin the next marker.
		if n := len(data) - 1; n > 0 {
			return n, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// MJPEGSource decodes frames from a stream of concatenated JPEG images, such
// as the stdout of "ffmpeg -f image2pipe -vcodec mjpeg".
type MJPEGSource struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner

	cmd       *exec.Cmd
	stderr    *bytes.Buffer
	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

// NewMJPEGSource reads frames from rc. Close closes rc.
func NewMJPEGSource(rc io.ReadCloser) *MJPEGSource {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, initialFrameBuffer), maxFrameSize)
	scanner.Split(SplitJPEG)
	return &MJPEGSource{rc: rc, scanner: scanner}
}

// FFmpegOptions configures the ffmpeg decoder process.
type FFmpegOptions struct {
	// Binary defaults to "ffmpeg".
	Binary string
	// InputFormat is passed as -f before the input, e.g. "v4l2" for cameras.
	InputFormat string
	// FPS limits the decoded frame rate when positive.
	FPS int
}

// FFmpegArgs returns the ffmpeg arguments that decode input to MJPEG on stdout.
func FFmpegArgs(input string, opts FFmpegOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if opts.InputFormat != "" {
		args = append(args, "-f", opts.InputFormat)
	}
	args = append(args, "-i", input)
	if opts.FPS > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%d", opts.FPS))
	}
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

// OpenFFmpeg starts ffmpeg on input (a file, URL or capture device) and
// reads its MJPEG output.
func OpenFFmpeg(ctx context.Context, input string, opts FFmpegOptions) (*MJPEGSource, error) {
	bin := opts.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrCaptureFailed, bin, err)
	}

	cmd := exec.CommandContext(ctx, bin, FFmpegArgs(input, opts)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start %s: %v", ErrCaptureFailed, bin, err)
	}

	src := NewMJPEGSource(stdout)
	src.cmd = cmd
	src.stderr = stderr
	return src, nil
}

// Next returns the next decoded frame.
func (s *MJPEGSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
		if err := s.wait(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
		return nil, io.EOF
	}

	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: decode frame: %v", ErrCaptureFailed, err)
	}
	return img, nil
}

func (s *MJPEGSource) wait() error {
	if s.cmd == nil {
		return nil
	}
	s.waitOnce.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			msg := strings.TrimSpace(s.stderr.String())
			if msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			s.waitErr = err
		}
	})
	return s.waitErr
}

// Close releases the stream and stops the decoder process, if any.
func (s *MJPEGSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.rc.Close()
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_ = s.wait()
		}
		if errors.Is(err, os.ErrClosed) {
			err = nil
		}
	})
	return err
}
