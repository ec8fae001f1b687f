package labels

import (
	"fmt"
	"math"
	"strings"

	"vdiff/internal/services"
)

// Policy selects how the caller handles detections the extractor rejects.
type Policy string

const (
	// PolicyAbort stops the run on the first rejected detection.
	PolicyAbort Policy = "abort"
	// PolicySkip drops rejected detections and continues.
	PolicySkip Policy = "skip"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case PolicyAbort:
		return PolicyAbort, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", services.NewConfigError("engine.unknown_label_policy", "must be one of: skip, abort (got %q)", value)
	}
}

// UnknownLabelError reports a surviving detection whose label is outside the
// vocabulary.
type UnknownLabelError struct {
	Label      string
	Confidence float64
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown label %q (confidence %.2f)", e.Label, e.Confidence)
}

func (e *UnknownLabelError) Unwrap() error { return services.ErrUnknownLabel }

// InvalidDetectionError reports a detection whose confidence is outside [0, 1].
type InvalidDetectionError struct {
	Label      string
	Confidence float64
}

func (e *InvalidDetectionError) Error() string {
	return fmt.Sprintf("detection %q has confidence %v outside [0, 1]", e.Label, e.Confidence)
}

func (e *InvalidDetectionError) Unwrap() error { return services.ErrInvalidDetection }

// Extractor converts detections into a label set. It is a pure function of
// its configuration and input.
type Extractor struct {
	vocab     *Vocabulary
	threshold float64
}

// NewExtractor validates the confidence threshold.
func NewExtractor(vocab *Vocabulary, confidenceThreshold float64) (*Extractor, error) {
	if vocab == nil {
		return nil, services.NewConfigError("labels.vocabulary", "is required")
	}
	if math.IsNaN(confidenceThreshold) || confidenceThreshold < 0 || confidenceThreshold > 1 {
		return nil, services.NewConfigError("engine.confidence_threshold", "must be between 0 and 1 (got %v)", confidenceThreshold)
	}
	return &Extractor{vocab: vocab, threshold: confidenceThreshold}, nil
}

// Vocabulary returns the extractor's vocabulary.
func (e *Extractor) Vocabulary() *Vocabulary { return e.vocab }

// Threshold returns the confidence threshold.
func (e *Extractor) Threshold() float64 { return e.threshold }

// Extract drops detections below the threshold and collects the surviving
// labels. hasErrorClass is true when any survivor is an error-class label.
// The first out-of-range confidence or surviving unknown label aborts
// extraction with a typed error.
func (e *Extractor) Extract(dets []Detection) (Set, bool, error) {
	set := make(Set)
	hasErrorClass := false
	for _, det := range dets {
		if err := e.check(det); err != nil {
			return nil, false, err
		}
		if det.Confidence < e.threshold {
			continue
		}
		set.Add(det.Label)
		if e.vocab.IsErrorClass(det.Label) {
			hasErrorClass = true
		}
	}
	return set, hasErrorClass, nil
}

// Sanitize splits dets into detections Extract accepts and the errors the
// rest would raise. Callers using PolicySkip extract from the kept slice.
func (e *Extractor) Sanitize(dets []Detection) ([]Detection, []error) {
	kept := make([]Detection, 0, len(dets))
	var rejected []error
	for _, det := range dets {
		if err := e.check(det); err != nil {
			rejected = append(rejected, err)
			continue
		}
		kept = append(kept, det)
	}
	return kept, rejected
}

// Filter returns detections at or above the threshold, preserving order.
// Unknown labels are kept; use Sanitize first when they matter.
func (e *Extractor) Filter(dets []Detection) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, det := range dets {
		if det.Confidence >= e.threshold {
			out = append(out, det)
		}
	}
	return out
}

func (e *Extractor) check(det Detection) error {
	if math.IsNaN(det.Confidence) || det.Confidence < 0 || det.Confidence > 1 {
		return &InvalidDetectionError{Label: det.Label, Confidence: det.Confidence}
	}
	if det.Confidence >= e.threshold && !e.vocab.Known(det.Label) {
		return &UnknownLabelError{Label: det.Label, Confidence: det.Confidence}
	}
	return nil
}
