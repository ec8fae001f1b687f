// Package logging assembles structured slog loggers and formatting helpers used
// across vdiff.
//
// It owns the console (optionally coloured) and JSON handlers, the per-run
// JSON log tee, and context helpers that tag log lines with run IDs, stages,
// and frame indices. A no-op logger is provided for tests and wiring code that
// cannot fail.
package logging
