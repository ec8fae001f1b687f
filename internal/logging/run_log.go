package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// runIDHandler stamps every record with the run identifier so a per-run log
// file stays self-describing when copied out of its directory.
type runIDHandler struct {
	base  slog.Handler
	runID string
}

func newRunIDHandler(base slog.Handler, runID string) slog.Handler {
	if base == nil {
		return NoopHandler{}
	}
	return &runIDHandler{base: base, runID: runID}
}

func (h *runIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *runIDHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(slog.String(FieldRunID, h.runID))
	return h.base.Handle(ctx, record)
}

func (h *runIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	filtered := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Key == FieldRunID {
			continue
		}
		filtered = append(filtered, attr)
	}
	return &runIDHandler{base: h.base.WithAttrs(filtered), runID: h.runID}
}

func (h *runIDHandler) WithGroup(name string) slog.Handler {
	return &runIDHandler{base: h.base.WithGroup(name), runID: h.runID}
}

// OpenRunLog tees base into a debug-level JSON log at path. The returned
// closer must be called when the run finishes.
func OpenRunLog(base *slog.Logger, path, runID string) (*slog.Logger, io.Closer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nopCloser{}, nil
	}
	if err := ensureLogDir(path); err != nil {
		return nil, nil, fmt.Errorf("ensure run log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	handler := newRunIDHandler(newJSONHandler(file, slog.LevelDebug, false), runID)
	return TeeLogger(base, handler), file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
