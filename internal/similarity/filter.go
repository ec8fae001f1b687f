package similarity

import (
	"image"
	"math"

	"vdiff/internal/services"
)

// Result is the outcome of comparing one frame pair.
type Result struct {
	Score     float64
	Candidate bool
}

// Filter gates frame pairs on SSIM. It holds no state between calls.
type Filter struct {
	threshold float64
	width     int
}

// NewFilter validates threshold (in [-1, 1]) and the optional analysis width.
// A width of zero compares frames at the reference resolution.
func NewFilter(threshold float64, width int) (*Filter, error) {
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return nil, services.NewConfigError("engine.pixel_similarity_threshold", "must be between -1 and 1 (got %v)", threshold)
	}
	if width < 0 {
		return nil, services.NewConfigError("engine.similarity_width", "must be >= 0 (got %d)", width)
	}
	return &Filter{threshold: threshold, width: width}, nil
}

// Threshold returns the configured similarity threshold.
func (f *Filter) Threshold() float64 { return f.threshold }

// Evaluate scores ref against cand. The pair is a candidate for classification
// when the score is strictly below the threshold.
func (f *Filter) Evaluate(ref, cand image.Image) (Result, error) {
	score, err := ssimAt(ref, cand, f.width)
	if err != nil {
		return Result{}, err
	}
	return Result{Score: score, Candidate: score < f.threshold}, nil
}
