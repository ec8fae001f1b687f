package pipeline

import (
	"context"
	"image"

	"vdiff/internal/divergence"
	"vdiff/internal/labels"
	"vdiff/internal/media/frames"
	"vdiff/internal/segment"
	"vdiff/internal/services"
)

// Stream names passed to the detector.
const (
	StreamReference = "reference"
	StreamCandidate = "candidate"
)

// Source yields frames in index order and io.EOF at the end.
type Source interface {
	Next(ctx context.Context) (frames.Frame, error)
}

// Detector returns the raw detections for one frame.
type Detector interface {
	Detect(ctx context.Context, stream string, frame frames.Frame) ([]labels.Detection, error)
}

// Config holds the per-run engine settings.
type Config struct {
	Mode    divergence.Mode
	Stride  int
	Segment segment.Config
	Policy  labels.Policy
	// Prefetch bounds how many decoded frame pairs wait for the engine.
	Prefetch int
	// TotalFrames, when known, drives progress logging.
	TotalFrames int
}

// Validate checks the stride, policy and segmenter windows.
func (c Config) Validate() error {
	if _, err := divergence.ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Stride < 1 {
		return services.NewConfigError("engine.sampling_stride", "must be >= 1 (got %d)", c.Stride)
	}
	if _, err := labels.ParsePolicy(string(c.Policy)); err != nil {
		return err
	}
	if c.Prefetch < 0 {
		return services.NewConfigError("engine.prefetch", "must be >= 0 (got %d)", c.Prefetch)
	}
	return c.Segment.Validate()
}

// Finding is a closed interval with the candidate frame captured when its
// onset confirmed.
type Finding struct {
	Interval      segment.Interval
	Snapshot      image.Image
	SnapshotFrame int
}

// Result summarizes a run. Partial is set when the run was cancelled.
type Result struct {
	RunID           string
	Mode            divergence.Mode
	Findings        []Finding
	FramesDecoded   int
	FramesEvaluated int
	LastTime        float64
	Partial         bool
}

// FrameEvent is delivered to the frame hook for every decoded candidate
// frame. Frames off the sampling stride carry the annotations of the last
// evaluated frame and a zero Decision.
type FrameEvent struct {
	Frame       frames.Frame
	Evaluated   bool
	Gated       bool
	Similarity  float64
	Decision    divergence.Decision
	Annotations []Annotation
}
