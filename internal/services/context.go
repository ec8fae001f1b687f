package services

import "context"

type contextKey string

const (
	runIDKey  contextKey = "run_id"
	stageKey  contextKey = "stage"
	modeKey   contextKey = "mode"
	frameKey  contextKey = "frame_index"
	streamKey contextKey = "stream"
)

// WithRunID annotates context with the comparison run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithMode annotates context with the comparison mode (single/dual).
func WithMode(ctx context.Context, mode string) context.Context {
	if mode == "" {
		return ctx
	}
	return context.WithValue(ctx, modeKey, mode)
}

// ModeFromContext returns the comparison mode if present.
func ModeFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(modeKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithStream annotates context with the stream role (reference/candidate).
func WithStream(ctx context.Context, stream string) context.Context {
	if stream == "" {
		return ctx
	}
	return context.WithValue(ctx, streamKey, stream)
}

// StreamFromContext returns the stream role if present.
func StreamFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(streamKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithFrameIndex annotates context with the frame currently being evaluated.
func WithFrameIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, frameKey, index)
}

// FrameIndexFromContext extracts the frame index if present.
func FrameIndexFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(frameKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}
