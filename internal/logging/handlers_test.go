package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestTeeCollapses(t *testing.T) {
	if _, ok := tee(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := tee(nil, inner); h != inner {
		t.Fatal("expected a single handler to be returned unwrapped")
	}
}

func TestTeeRoutesByLevel(t *testing.T) {
	var console, runLog bytes.Buffer
	h := tee(
		slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&runLog, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected tee to accept debug")
	}
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String(FieldMode, "dual")}))
	logger.Debug("frame evaluated")
	if console.Len() != 0 {
		t.Fatalf("console received debug record: %s", console.String())
	}
	if !bytes.Contains(runLog.Bytes(), []byte(`"mode":"dual"`)) {
		t.Fatalf("run log missing attrs: %s", runLog.String())
	}
}

func TestTeeLoggerWithoutBase(t *testing.T) {
	var buf bytes.Buffer
	TeeLogger(nil, slog.NewJSONHandler(&buf, nil)).Info("no base")
	if buf.Len() == 0 {
		t.Fatal("expected output with nil base")
	}
}

func TestJSONHandlerKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newJSONHandler(&buf, slog.LevelDebug, false))
	logger.Warn("divergence interval",
		slog.Float64("start", 0.30000000000000004),
		slog.Float64(FieldFrameTime, 1.0/3),
		slog.Float64("score", 0.123456),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := rec["ts"]; !ok {
		t.Fatalf("missing ts: %v", rec)
	}
	if rec["level"] != "warn" {
		t.Fatalf("level = %v", rec["level"])
	}
	if rec["start"] != 0.3 || rec[FieldFrameTime] != 0.333 {
		t.Fatalf("times not rounded: %v", rec)
	}
	if rec["score"] != 0.123456 {
		t.Fatalf("score should be untouched: %v", rec["score"])
	}
}

func TestWithLevelOverrideReplacesFloor(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	quiet := WithLevelOverride(base, slog.LevelError)
	louder := WithLevelOverride(quiet, slog.LevelInfo)
	if _, ok := louder.Handler().(floorHandler).next.(floorHandler); ok {
		t.Fatal("floors should not stack")
	}
	louder.Info("shown")
	quiet.Warn("hidden")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) || bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
