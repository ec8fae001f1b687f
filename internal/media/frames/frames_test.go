package frames

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"slices"
	"testing"

	"vdiff/internal/services"
)

// Two 2x1 frames: red/green then blue/white.
var helperFrames = []byte{
	255, 0, 0, 0, 255, 0,
	0, 0, 255, 255, 255, 255,
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "short":
		_, _ = os.Stdout.Write(helperFrames[:8])
		os.Exit(0)
	case "fail":
		_, _ = os.Stderr.WriteString("Invalid data found when processing input\n")
		os.Exit(1)
	default:
		_, _ = os.Stdout.Write(helperFrames)
		os.Exit(0)
	}
}

func stubFFmpeg(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string(nil), args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestReaderYieldsIndexedFrames(t *testing.T) {
	var args []string
	stubFFmpeg(t, "success", &args)

	reader, err := Open(context.Background(), Options{Path: "/videos/a.mp4", Width: 2, Height: 1, FPS: 10})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	ctx := context.Background()
	first, err := reader.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Index != 1 || first.Time != 0.1 {
		t.Fatalf("unexpected first frame position %d/%v", first.Index, first.Time)
	}
	r, g, b, _ := first.Image.At(1, 0).RGBA()
	if r != 0 || g != 0xffff || b != 0 {
		t.Fatalf("expected green pixel, got %d,%d,%d", r, g, b)
	}
	second, err := reader.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Index != 2 || second.Time != 0.2 {
		t.Fatalf("unexpected second frame position %d/%v", second.Index, second.Time)
	}
	if _, err := reader.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	if !slices.Contains(args, "rgb24") || slices.Contains(args, "-vf") {
		t.Fatalf("unexpected ffmpeg args %v", args)
	}
}

func TestReaderScalesWhenSourceDiffers(t *testing.T) {
	var args []string
	stubFFmpeg(t, "success", &args)

	reader, err := Open(context.Background(), Options{Path: "a.mp4", Width: 2, Height: 1, SourceWidth: 4, FPS: 10, HWAccel: "vaapi"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	idx := slices.Index(args, "-vf")
	if idx < 0 || args[idx+1] != "scale=2:1" {
		t.Fatalf("expected scale filter, got %v", args)
	}
	if !slices.Contains(args, "vaapi") {
		t.Fatalf("expected hwaccel flag, got %v", args)
	}
}

func TestReaderShortReadIsDecodeError(t *testing.T) {
	stubFFmpeg(t, "short", nil)

	reader, err := Open(context.Background(), Options{Path: "a.mp4", Width: 2, Height: 1, FPS: 10})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(context.Background()); err != nil {
		t.Fatalf("first frame should decode: %v", err)
	}
	_, err = reader.Next(context.Background())
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Index != 2 {
		t.Fatalf("expected DecodeError at frame 2, got %v", err)
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode marker, got %v", err)
	}
}

func TestReaderProcessFailure(t *testing.T) {
	stubFFmpeg(t, "fail", nil)

	reader, err := Open(context.Background(), Options{Path: "a.mp4", Width: 2, Height: 1, FPS: 10})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(context.Background()); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestOpenValidatesOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"empty path", Options{Width: 2, Height: 2, FPS: 1}, services.ErrValidation},
		{"zero size", Options{Path: "a.mp4", FPS: 1}, services.ErrDecode},
		{"zero fps", Options{Path: "a.mp4", Width: 2, Height: 2}, services.ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(context.Background(), tt.opts); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
