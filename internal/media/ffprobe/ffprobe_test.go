package ffprobe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"testing"

	"vdiff/internal/services"
)

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("FFPROBE_HELPER_MODE") {
	case "fail":
		fmt.Fprint(os.Stderr, "No such file or directory")
		os.Exit(1)
	default:
		fmt.Print(`{"streams":[{"index":0,"codec_type":"audio"},{"index":1,"codec_type":"video","codec_name":"h264","width":1920,"height":1080,"r_frame_rate":"30000/1001","nb_frames":"300"}],"format":{"duration":"10.01"}}`)
		os.Exit(0)
	}
}

func stubFFprobe(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFPROBE_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestInspectParsesVideoStream(t *testing.T) {
	stubFFprobe(t, "success")

	result, err := Inspect(context.Background(), "", "/videos/a.mp4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	video, ok := result.VideoStream()
	if !ok {
		t.Fatalf("expected a video stream")
	}
	if video.Width != 1920 || video.Height != 1080 {
		t.Fatalf("unexpected size %dx%d", video.Width, video.Height)
	}
	if math.Abs(video.FrameRate()-29.97003) > 1e-4 {
		t.Fatalf("unexpected frame rate %v", video.FrameRate())
	}
	if video.FrameCount() != 300 {
		t.Fatalf("unexpected frame count %d", video.FrameCount())
	}
	if len(result.RawJSON()) == 0 {
		t.Fatalf("expected raw JSON to be retained")
	}
}

func TestInspectFailureIsExternalToolError(t *testing.T) {
	stubFFprobe(t, "fail")

	_, err := Inspect(context.Background(), "ffprobe", "/videos/missing.mp4")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "", "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFrameRateParsing(t *testing.T) {
	tests := []struct {
		name   string
		stream Stream
		want   float64
	}{
		{"rational", Stream{RFrameRate: "25/1"}, 25},
		{"plain number", Stream{RFrameRate: "60"}, 60},
		{"zero denominator falls back to average", Stream{RFrameRate: "0/0", AvgFrameRate: "24000/1001"}, 24000.0 / 1001},
		{"missing", Stream{}, 0},
		{"garbage", Stream{RFrameRate: "abc/def"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stream.FrameRate(); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("FrameRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDurationHandlesInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if (Stream{NBFrames: "N/A"}).FrameCount() != 0 {
		t.Fatalf("expected 0 frames for N/A")
	}
}
