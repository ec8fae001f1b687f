package segment

import (
	"fmt"

	"vdiff/internal/divergence"
	"vdiff/internal/labels"
	"vdiff/internal/services"
)

// State is the segmenter's position in its state machine.
type State int

const (
	Idle State = iota
	PendingStart
	InDivergence
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingStart:
		return "pending_start"
	case InDivergence:
		return "in_divergence"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the confirmation and debounce windows, counted in evaluated
// frames.
type Config struct {
	// StartConfirmationFrames is the number of further divergent frames
	// required after the first before an onset confirms. Zero confirms on the
	// first divergent frame.
	StartConfirmationFrames int
	// EndDebounceFrames is the number of consecutive clear frames that close
	// an open interval.
	EndDebounceFrames int
	// RearmAfterClose restores the full confirmation window after an interval
	// closes. When false an onset after a close needs one frame less, so the
	// divergent frame that starts it counts toward the window.
	RearmAfterClose bool
}

// Validate reports invalid windows as ConfigError.
func (c Config) Validate() error {
	if c.StartConfirmationFrames < 0 {
		return services.NewConfigError("engine.start_confirmation_frames", "must be >= 0 (got %d)", c.StartConfirmationFrames)
	}
	if c.EndDebounceFrames < 1 {
		return services.NewConfigError("engine.end_debounce_frames", "must be >= 1 (got %d)", c.EndDebounceFrames)
	}
	return nil
}

// Interval is one closed divergence. Start is strictly before End.
type Interval struct {
	Start      float64
	End        float64
	StartFrame int
	EndFrame   int
	Cause      labels.Set
}

// Duration returns End - Start in seconds.
func (i Interval) Duration() float64 { return i.End - i.Start }

// Step reports what a single observation did.
type Step struct {
	// Confirmed is set on the frame where an onset confirms. Callers capture
	// the interval's snapshot from this frame.
	Confirmed bool
	// Closed carries the interval the observation ended, if any.
	Closed *Interval
}

// SequenceError reports a decision that does not strictly follow the previous
// one in frame index and time.
type SequenceError struct {
	PreviousIndex int
	Index         int
	PreviousTime  float64
	Time          float64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("frame %d (t=%.3f) does not follow frame %d (t=%.3f)", e.Index, e.Time, e.PreviousIndex, e.PreviousTime)
}

func (e *SequenceError) Unwrap() error { return services.ErrSequence }

// Segmenter consumes decisions in frame order.
type Segmenter struct {
	cfg Config

	state      State
	armed      int
	remaining  int
	clearRun   int
	start      float64
	startFrame int
	cause      labels.Set

	seen      bool
	lastIndex int
	lastTime  float64
	err       error
}

// New validates cfg and returns an idle segmenter.
func New(cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{cfg: cfg, armed: cfg.StartConfirmationFrames, remaining: cfg.StartConfirmationFrames}, nil
}

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// Err returns the error that poisoned the segmenter, if any.
func (s *Segmenter) Err() error { return s.err }

// Observe advances the state machine by one decision. After a SequenceError
// every call returns the same error.
func (s *Segmenter) Observe(d divergence.Decision) (Step, error) {
	if s.err != nil {
		return Step{}, s.err
	}
	if s.seen && (d.FrameIndex <= s.lastIndex || d.Time <= s.lastTime) {
		s.err = &SequenceError{PreviousIndex: s.lastIndex, Index: d.FrameIndex, PreviousTime: s.lastTime, Time: d.Time}
		return Step{}, s.err
	}
	s.seen = true
	s.lastIndex = d.FrameIndex
	s.lastTime = d.Time

	if d.Divergent {
		return s.divergent(d), nil
	}
	return s.clear(d), nil
}

func (s *Segmenter) divergent(d divergence.Decision) Step {
	s.clearRun = 0
	switch s.state {
	case Idle:
		s.state = PendingStart
		s.cause = d.Cause.Clone()
		if s.remaining == 0 {
			return s.confirm(d)
		}
	case PendingStart:
		s.cause = s.cause.Union(d.Cause)
		s.remaining--
		if s.remaining <= 0 {
			s.remaining = 0
			return s.confirm(d)
		}
	case InDivergence:
		s.cause = s.cause.Union(d.Cause)
	}
	return Step{}
}

func (s *Segmenter) confirm(d divergence.Decision) Step {
	s.state = InDivergence
	s.start = d.Time
	s.startFrame = d.FrameIndex
	return Step{Confirmed: true}
}

func (s *Segmenter) clear(d divergence.Decision) Step {
	switch s.state {
	case PendingStart:
		s.discard()
	case InDivergence:
		s.clearRun++
		if s.clearRun >= s.cfg.EndDebounceFrames {
			interval := s.emit(d.Time, d.FrameIndex)
			return Step{Closed: &interval}
		}
	}
	return Step{}
}

func (s *Segmenter) emit(end float64, endFrame int) Interval {
	interval := Interval{
		Start:      s.start,
		End:        end,
		StartFrame: s.startFrame,
		EndFrame:   endFrame,
		Cause:      s.cause,
	}
	s.reset()
	return interval
}

func (s *Segmenter) reset() {
	s.state = Idle
	s.clearRun = 0
	s.start = 0
	s.startFrame = 0
	s.cause = nil
	s.armed = s.cfg.StartConfirmationFrames
	if !s.cfg.RearmAfterClose {
		s.armed = max(s.cfg.StartConfirmationFrames-1, 0)
	}
	s.remaining = s.armed
}

// discard drops a pending onset and restores the budget it started from.
func (s *Segmenter) discard() {
	s.state = Idle
	s.remaining = s.armed
	s.cause = nil
}

// Finalize closes an open interval at lastTime, the time of the last decoded
// frame. A pending onset is discarded. Nothing is emitted when the segmenter
// is poisoned or lastTime does not follow the interval start.
func (s *Segmenter) Finalize(lastTime float64) (*Interval, bool) {
	if s.err != nil {
		return nil, false
	}
	switch s.state {
	case InDivergence:
		if lastTime <= s.start {
			s.reset()
			return nil, false
		}
		endFrame := s.lastIndex
		interval := s.emit(lastTime, endFrame)
		return &interval, true
	case PendingStart:
		s.discard()
	}
	return nil, false
}
