package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strings"
	"sync"

	"vdiff/internal/media/ffprobe"
	"vdiff/internal/services"
)

var commandContext = exec.CommandContext

const stderrLimit = 4096

// Frame is one decoded picture. Index is 1-based; Time is Index/FPS seconds.
type Frame struct {
	Index int
	Time  float64
	Image image.Image
}

// DecodeError reports a stream that ended mid-frame or could not be decoded.
type DecodeError struct {
	Path   string
	Index  int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("decode %s frame %d: %s", e.Path, e.Index, e.Reason)
	}
	return fmt.Sprintf("decode %s: %s", e.Path, e.Reason)
}

func (e *DecodeError) Unwrap() error { return services.ErrDecode }

// Options describes the stream to decode. Width, Height and FPS describe the
// output ffmpeg produces; ffmpeg scales when SourceWidth is known and differs
// from Width.
type Options struct {
	Binary      string
	Path        string
	Width       int
	Height      int
	SourceWidth int
	FPS         float64
	HWAccel     string
	// FrameCount is the expected number of frames, 0 when unknown.
	FrameCount int
}

func (o Options) validate() error {
	if strings.TrimSpace(o.Path) == "" {
		return services.Wrap(services.ErrValidation, "frames", "open", "empty path", nil)
	}
	if o.Width <= 0 || o.Height <= 0 {
		return &DecodeError{Path: o.Path, Reason: fmt.Sprintf("invalid frame size %dx%d", o.Width, o.Height)}
	}
	if o.FPS <= 0 || math.IsNaN(o.FPS) || math.IsInf(o.FPS, 0) {
		return &DecodeError{Path: o.Path, Reason: fmt.Sprintf("invalid frame rate %v", o.FPS)}
	}
	return nil
}

func (o Options) args() []string {
	scale := o.SourceWidth > 0 && o.SourceWidth != o.Width
	args := []string{"-hide_banner", "-nostdin", "-v", "error"}
	if hw := strings.TrimSpace(o.HWAccel); hw != "" {
		args = append(args, "-hwaccel", hw)
	}
	args = append(args, "-i", o.Path)
	if scale {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", o.Width, o.Height))
	}
	return append(args, "-an", "-sn", "-f", "rawvideo", "-pix_fmt", "rgb24", "pipe:1")
}

// Describe probes path and returns reader options. A positive scaleWidth
// narrower than the source downscales frames, keeping the aspect ratio and an
// even height.
func Describe(ctx context.Context, ffprobeBinary, path string, scaleWidth int) (Options, error) {
	result, err := ffprobe.Inspect(ctx, ffprobeBinary, path)
	if err != nil {
		return Options{}, err
	}
	stream, ok := result.VideoStream()
	if !ok {
		return Options{}, &DecodeError{Path: path, Reason: "no video stream"}
	}
	opts := Options{Path: path, Width: stream.Width, Height: stream.Height, SourceWidth: stream.Width, FPS: stream.FrameRate()}
	opts.FrameCount = stream.FrameCount()
	if opts.FrameCount == 0 && opts.FPS > 0 {
		opts.FrameCount = int(math.Round(result.DurationSeconds() * opts.FPS))
	}
	if scaleWidth > 0 && stream.Width > scaleWidth {
		height := int(math.Round(float64(stream.Height) * float64(scaleWidth) / float64(stream.Width)))
		opts.Width = scaleWidth
		opts.Height = max(height+height%2, 2)
	}
	return opts, opts.validate()
}

// Reader yields frames from a running ffmpeg process.
type Reader struct {
	opts      Options
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    *tailBuffer
	frameSize int
	buf       []byte
	index     int
	done      bool
	closeOnce sync.Once
}

// Open starts ffmpeg for opts. The process is bound to ctx.
func Open(ctx context.Context, opts Options) (*Reader, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := commandContext(ctx, binary, opts.args()...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "frames", "open", "stdout pipe", err)
	}
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "frames", "start ffmpeg", opts.Path, err)
	}
	size := opts.Width * opts.Height * 3
	return &Reader{
		opts:      opts,
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		frameSize: size,
		buf:       make([]byte, size),
	}, nil
}

// FPS returns the stream's frame rate.
func (r *Reader) FPS() float64 { return r.opts.FPS }

// FrameCount returns the probed frame count, 0 when unknown.
func (r *Reader) FrameCount() int { return r.opts.FrameCount }

// Size returns the output frame size.
func (r *Reader) Size() (int, int) { return r.opts.Width, r.opts.Height }

// Next decodes the next frame. It returns io.EOF once ffmpeg finishes cleanly
// and a DecodeError when the pipe ends mid-frame.
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	if r.done {
		return Frame{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	n, err := io.ReadFull(r.stdout, r.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && n == 0:
		r.done = true
		if waitErr := r.wait(); waitErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Frame{}, ctxErr
			}
			return Frame{}, services.Wrap(services.ErrExternalTool, "frames", "ffmpeg", r.stderr.String(), waitErr)
		}
		return Frame{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.done = true
		_ = r.wait()
		return Frame{}, &DecodeError{Path: r.opts.Path, Index: r.index + 1, Reason: fmt.Sprintf("short read (%d of %d bytes)", n, r.frameSize)}
	default:
		r.done = true
		_ = r.wait()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Frame{}, ctxErr
		}
		return Frame{}, &DecodeError{Path: r.opts.Path, Index: r.index + 1, Reason: err.Error()}
	}
	r.index++
	return Frame{
		Index: r.index,
		Time:  float64(r.index) / r.opts.FPS,
		Image: rgbImage(r.buf, r.opts.Width, r.opts.Height),
	}, nil
}

// Close stops ffmpeg and releases the pipe.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.done = true
		_ = r.stdout.Close()
		if r.cmd.ProcessState == nil && r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
			_ = r.cmd.Wait()
		}
	})
	return nil
}

func (r *Reader) wait() error {
	if r.cmd.ProcessState != nil {
		return nil
	}
	return r.cmd.Wait()
}

func rgbImage(buf []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for src, dst := 0, 0; src+2 < len(buf); src, dst = src+3, dst+4 {
		img.Pix[dst] = buf[src]
		img.Pix[dst+1] = buf[src+1]
		img.Pix[dst+2] = buf[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
