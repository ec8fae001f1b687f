// Package divergence decides per frame whether the candidate stream diverges
// and which labels caused it.
package divergence

import (
	"strings"

	"vdiff/internal/labels"
	"vdiff/internal/services"
)

// Mode selects how frames are compared.
type Mode string

const (
	// ModeSingle classifies one stream against the error class alone.
	ModeSingle Mode = "single"
	// ModeDual compares a candidate stream against a reference stream.
	ModeDual Mode = "dual"
)

// ParseMode validates a mode name.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeSingle:
		return ModeSingle, nil
	case ModeDual:
		return ModeDual, nil
	default:
		return "", services.NewConfigError("mode", "must be one of: single, dual (got %q)", value)
	}
}

// Observation is the extracted label set of one frame.
type Observation struct {
	Labels        labels.Set
	HasErrorClass bool
}

// Decision is the per-frame verdict fed to the segmenter. Cause is empty
// whenever Divergent is false.
type Decision struct {
	FrameIndex int
	Time       float64
	Divergent  bool
	Cause      labels.Set
}

// Classifier turns observations into decisions using set operations only.
type Classifier struct {
	mode  Mode
	vocab *labels.Vocabulary
}

// New builds a classifier for mode.
func New(mode Mode, vocab *labels.Vocabulary) (*Classifier, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if vocab == nil {
		return nil, services.NewConfigError("labels.vocabulary", "is required")
	}
	return &Classifier{mode: mode, vocab: vocab}, nil
}

// Mode returns the configured mode.
func (c *Classifier) Mode() Mode { return c.mode }

// Classify dispatches on the configured mode. ref is ignored in single mode
// and required in dual mode; a missing reference observation counts as empty.
func (c *Classifier) Classify(index int, t float64, ref *Observation, cand Observation) Decision {
	if c.mode == ModeDual {
		var reference Observation
		if ref != nil {
			reference = *ref
		}
		return c.Dual(index, t, reference, cand)
	}
	return c.Single(index, t, cand)
}

// Single marks the frame divergent when any error-class label survived.
func (c *Classifier) Single(index int, t float64, cand Observation) Decision {
	if !cand.HasErrorClass {
		return c.Clear(index, t)
	}
	return Decision{FrameIndex: index, Time: t, Divergent: true, Cause: c.vocab.ErrorSubset(cand.Labels)}
}

// Dual marks the frame divergent when the candidate carries an error-class
// label or a label the reference lacks. Novel labels take precedence as the
// cause.
func (c *Classifier) Dual(index int, t float64, ref, cand Observation) Decision {
	novel := cand.Labels.Difference(ref.Labels)
	if !cand.HasErrorClass && novel.Empty() {
		return c.Clear(index, t)
	}
	cause := novel
	if cause.Empty() {
		cause = c.vocab.ErrorSubset(cand.Labels)
	}
	return Decision{FrameIndex: index, Time: t, Divergent: true, Cause: cause}
}

// Clear returns a non-divergent decision, used for frames the pixel gate
// rejected as well.
func (c *Classifier) Clear(index int, t float64) Decision {
	return Decision{FrameIndex: index, Time: t, Cause: labels.Set{}}
}
