package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// Engine failure markers. Typed errors in the engine packages unwrap to
	// one of these so callers can branch with errors.Is.
	ErrDecode           = errors.New("frame decode error")
	ErrUnknownLabel     = errors.New("unknown label")
	ErrInvalidDetection = errors.New("invalid detection")
	ErrSequence         = errors.New("frame sequence error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ConfigError reports an invalid threshold or window supplied when a component
// is constructed. It always matches ErrConfiguration.
type ConfigError struct {
	Field  string
	Reason string
}

// NewConfigError builds a ConfigError for field.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + " " + e.Reason
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// Run outcomes persisted in the run history.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
	RunStatusInvalid   = "invalid"
)

// FailureStatus maps a run error to the history status the caller should
// persist. Cancelled runs keep their well-formed partial results.
func FailureStatus(err error) string {
	switch {
	case err == nil:
		return RunStatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RunStatusPartial
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return RunStatusInvalid
	default:
		return RunStatusFailed
	}
}

// ExitCode maps an error to a process exit status for the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return 2
	case errors.Is(err, ErrDecode), errors.Is(err, ErrSequence):
		return 3
	case errors.Is(err, ErrUnknownLabel), errors.Is(err, ErrInvalidDetection):
		return 4
	case errors.Is(err, ErrExternalTool), errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return 5
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
