package logging

import (
	"context"
	"log/slog"

	"vdiff/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for comparison run identifiers.
	FieldRunID = "run_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldMode is the standardized structured logging key for single/dual mode.
	FieldMode = "mode"
	// FieldStream is the standardized structured logging key for reference/candidate streams.
	FieldStream = "stream"
	// FieldFrameIndex is the standardized structured logging key for 1-based frame indices.
	FieldFrameIndex = "frame_index"
	// FieldFrameTime is the presentation time of a frame in seconds.
	FieldFrameTime = "frame_time"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if mode, ok := services.ModeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMode, mode))
	}
	if stream, ok := services.StreamFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStream, stream))
	}
	if idx, ok := services.FrameIndexFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldFrameIndex, idx))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(fields))
}
