package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"vdiff/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "frames", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"frames", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestConfigErrorMatchesMarker(t *testing.T) {
	err := fmt.Errorf("build segmenter: %w", services.NewConfigError("engine.end_debounce_frames", "must be >= 1 (got %d)", 0))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
	var cfgErr *services.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
	if cfgErr.Field != "engine.end_debounce_frames" {
		t.Fatalf("unexpected field %q", cfgErr.Field)
	}
	if !strings.Contains(err.Error(), "must be >= 1 (got 0)") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestFailureStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, services.RunStatusCompleted},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), services.RunStatusPartial},
		{"config", services.NewConfigError("x", "bad"), services.RunStatusInvalid},
		{"validation", services.Wrap(services.ErrValidation, "pipeline", "prepare", "invalid", nil), services.RunStatusInvalid},
		{"decode", services.Wrap(services.ErrDecode, "frames", "read", "short", nil), services.RunStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.FailureStatus(tt.err); got != tt.want {
				t.Fatalf("FailureStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if code := services.ExitCode(nil); code != 0 {
		t.Fatalf("expected 0 for nil, got %d", code)
	}
	if code := services.ExitCode(services.NewConfigError("x", "bad")); code != 2 {
		t.Fatalf("expected 2 for config error, got %d", code)
	}
	if code := services.ExitCode(services.Wrap(services.ErrSequence, "segment", "observe", "", nil)); code != 3 {
		t.Fatalf("expected 3 for sequence error, got %d", code)
	}
	if code := services.ExitCode(services.Wrap(services.ErrUnknownLabel, "labels", "extract", "", nil)); code != 4 {
		t.Fatalf("expected 4 for unknown label, got %d", code)
	}
	if code := services.ExitCode(errors.New("other")); code != 1 {
		t.Fatalf("expected 1 for unclassified error, got %d", code)
	}
}
