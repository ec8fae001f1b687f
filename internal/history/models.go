package history

import (
	"time"

	"vdiff/internal/services"
)

// Status values recorded for a run.
const (
	StatusRunning   = services.RunStatusRunning
	StatusCompleted = services.RunStatusCompleted
	StatusPartial   = services.RunStatusPartial
	StatusFailed    = services.RunStatusFailed
	StatusInvalid   = services.RunStatusInvalid
)

// Run is one comparison run as persisted in the history database.
type Run struct {
	ID              string     `json:"id"`
	Mode            string     `json:"mode"`
	ReferencePath   string     `json:"reference_path,omitempty"`
	CandidatePath   string     `json:"candidate_path"`
	FPS             float64    `json:"fps"`
	Stride          int        `json:"stride"`
	FramesDecoded   int64      `json:"frames_decoded"`
	FramesEvaluated int64      `json:"frames_evaluated"`
	ClassifierCalls int64      `json:"classifier_calls"`
	Status          string     `json:"status"`
	ErrorMessage    string     `json:"error,omitempty"`
	OutputDir       string     `json:"output_dir,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	IntervalCount   int        `json:"interval_count"`
}

// Interval is one persisted divergence interval of a run.
type Interval struct {
	RunID        string  `json:"run_id"`
	Seq          int     `json:"seq"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Cause        string  `json:"cause"`
	SnapshotPath string  `json:"snapshot,omitempty"`
}

// Outcome carries the fields recorded when a run finishes.
type Outcome struct {
	Status          string
	ErrorMessage    string
	FramesDecoded   int64
	FramesEvaluated int64
	ClassifierCalls int64
	FinishedAt      time.Time
}
