package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"vdiff/internal/divergence"
	"vdiff/internal/labels"
	"vdiff/internal/logging"
	"vdiff/internal/media/frames"
	"vdiff/internal/metrics"
	"vdiff/internal/segment"
	"vdiff/internal/services"
	"vdiff/internal/similarity"
)

// Components are the engine collaborators a Runner drives.
type Components struct {
	Extractor  *labels.Extractor
	Classifier *divergence.Classifier
	// Gate is required in dual mode and ignored in single mode.
	Gate     *similarity.Filter
	Detector Detector
}

// Runner executes comparison runs. A Runner may be reused sequentially; each
// Run gets a fresh segmenter.
type Runner struct {
	cfg     Config
	comps   Components
	logger  *slog.Logger
	metrics *metrics.Metrics
	onFrame func(FrameEvent)
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithFrameHook registers fn for every decoded candidate frame.
func WithFrameHook(fn func(FrameEvent)) Option {
	return func(r *Runner) {
		r.onFrame = fn
	}
}

// New validates cfg against the supplied components.
func New(cfg Config, comps Components, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case comps.Extractor == nil:
		return nil, services.NewConfigError("pipeline.extractor", "is required")
	case comps.Classifier == nil:
		return nil, services.NewConfigError("pipeline.classifier", "is required")
	case comps.Detector == nil:
		return nil, services.NewConfigError("pipeline.detector", "is required")
	case comps.Classifier.Mode() != cfg.Mode:
		return nil, services.NewConfigError("pipeline.classifier", "mode %s does not match run mode %s", comps.Classifier.Mode(), cfg.Mode)
	case cfg.Mode == divergence.ModeDual && comps.Gate == nil:
		return nil, services.NewConfigError("pipeline.gate", "is required in dual mode")
	}
	if cfg.Prefetch == 0 {
		cfg.Prefetch = 1
	}
	r := &Runner{cfg: cfg, comps: comps, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "pipeline")
	return r, nil
}

// runState is the mutable state of one Run.
type runState struct {
	seg           *segment.Segmenter
	result        *Result
	snapshot      image.Image
	snapshotFrame int
	lastObserved  float64
	annotations   []Annotation
	sampler       *logging.ProgressSampler
}

// Run compares candidate against reference (nil in single mode) until the
// candidate ends, an error occurs or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, candidate, reference Source) (*Result, error) {
	if candidate == nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run", "candidate source required", nil)
	}
	if r.cfg.Mode == divergence.ModeDual && reference == nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run", "reference source required in dual mode", nil)
	}
	if r.cfg.Mode == divergence.ModeSingle {
		reference = nil
	}
	seg, err := segment.New(r.cfg.Segment)
	if err != nil {
		return nil, err
	}

	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = services.WithRunID(ctx, runID)
	}
	ctx = services.WithMode(ctx, string(r.cfg.Mode))
	logger := logging.WithContext(ctx, r.logger)

	state := &runState{
		seg:     seg,
		result:  &Result{RunID: runID, Mode: r.cfg.Mode},
		sampler: logging.NewProgressSampler(r.cfg.TotalFrames, 10),
	}
	logger.Info("comparison started",
		logging.Int("stride", r.cfg.Stride),
		logging.Int("start_confirmation_frames", r.cfg.Segment.StartConfirmationFrames),
		logging.Int("end_debounce_frames", r.cfg.Segment.EndDebounceFrames),
		logging.String("unknown_label_policy", string(r.cfg.Policy)),
	)

	decodeCtx, cancel := context.WithCancel(ctx)
	pairs := prefetch(decodeCtx, r.cfg.Prefetch, candidate, reference)
	defer func() {
		cancel()
		for range pairs {
		}
	}()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case pair, open := <-pairs:
			if !open {
				break loop
			}
			if pair.err != nil {
				runErr = pair.err
				break loop
			}
			if err := r.step(ctx, logger, state, pair); err != nil {
				runErr = err
				break loop
			}
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		state.result.Partial = true
		r.finalize(logger, state, state.lastObserved)
		logger.Warn("comparison cancelled",
			logging.Int("frames_decoded", state.result.FramesDecoded),
			logging.Int("intervals", len(state.result.Findings)),
			logging.String(logging.FieldEventType, "run_cancelled"),
		)
		return state.result, ctxErr
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "comparison failed", "run_failed",
			logging.Error(runErr),
			logging.Int("frames_decoded", state.result.FramesDecoded),
			logging.String(logging.FieldErrorHint, errorHint(runErr)),
		)
		return state.result, runErr
	}

	r.finalize(logger, state, state.result.LastTime)
	logger.Info("comparison completed",
		logging.Int("frames_decoded", state.result.FramesDecoded),
		logging.Int("frames_evaluated", state.result.FramesEvaluated),
		logging.Int("intervals", len(state.result.Findings)),
	)
	return state.result, nil
}

func (r *Runner) step(ctx context.Context, logger *slog.Logger, state *runState, pair framePair) error {
	cand := pair.cand
	state.result.FramesDecoded++
	state.result.LastTime = cand.Time
	if r.metrics != nil {
		r.metrics.FramesDecoded.Add(1)
	}
	r.logProgress(logger, state, cand.Index)

	if cand.Index%r.cfg.Stride != 0 {
		r.emit(FrameEvent{Frame: cand, Annotations: state.annotations})
		return nil
	}

	state.result.FramesEvaluated++
	if r.metrics != nil {
		r.metrics.FramesEvaluated.Add(1)
	}
	event, err := r.evaluate(ctx, logger, cand, pair.ref)
	if err != nil {
		return err
	}
	state.annotations = event.Annotations

	outcome, err := state.seg.Observe(event.Decision)
	if err != nil {
		return err
	}
	state.lastObserved = cand.Time
	if outcome.Confirmed {
		state.snapshot = cloneImage(cand.Image)
		state.snapshotFrame = cand.Index
		if r.metrics != nil {
			r.metrics.SetOpen(true)
		}
		logger.Debug("divergence confirmed",
			logging.Int(logging.FieldFrameIndex, cand.Index),
			logging.Float64(logging.FieldFrameTime, cand.Time),
		)
	}
	if outcome.Closed != nil {
		r.record(logger, state, *outcome.Closed)
	}
	r.emit(event)
	return nil
}

// evaluate gates, classifies and decides one frame on the stride.
func (r *Runner) evaluate(ctx context.Context, logger *slog.Logger, cand frames.Frame, ref *frames.Frame) (FrameEvent, error) {
	event := FrameEvent{Frame: cand, Evaluated: true, Similarity: 1}
	classifier := r.comps.Classifier

	if r.cfg.Mode == divergence.ModeSingle {
		obs, kept, err := r.observe(ctx, logger, StreamCandidate, cand)
		if err != nil {
			return event, err
		}
		event.Decision = classifier.Single(cand.Index, cand.Time, obs)
		event.Annotations = Annotate(kept, nil, r.comps.Extractor.Vocabulary())
		return event, nil
	}

	gate, err := r.comps.Gate.Evaluate(ref.Image, cand.Image)
	if err != nil {
		return event, err
	}
	event.Similarity = gate.Score
	r.metrics.ObserveSimilarity(gate.Score, gate.Candidate)
	if !gate.Candidate {
		event.Gated = true
		event.Decision = classifier.Clear(cand.Index, cand.Time)
		return event, nil
	}

	refObs, _, err := r.observe(ctx, logger, StreamReference, *ref)
	if err != nil {
		return event, err
	}
	candObs, kept, err := r.observe(ctx, logger, StreamCandidate, cand)
	if err != nil {
		return event, err
	}
	event.Decision = classifier.Dual(cand.Index, cand.Time, refObs, candObs)
	event.Annotations = Annotate(kept, refObs.Labels, r.comps.Extractor.Vocabulary())
	return event, nil
}

// observe runs the detector on one frame and extracts its label set. kept
// holds the detections that cleared the confidence threshold.
func (r *Runner) observe(ctx context.Context, logger *slog.Logger, stream string, frame frames.Frame) (divergence.Observation, []labels.Detection, error) {
	started := time.Now()
	dets, err := r.comps.Detector.Detect(ctx, stream, frame)
	r.metrics.ObserveClassify(time.Since(started), err)
	if err != nil {
		return divergence.Observation{}, nil, err
	}

	extractor := r.comps.Extractor
	if r.cfg.Policy == labels.PolicySkip {
		kept, rejected := extractor.Sanitize(dets)
		for _, rejection := range rejected {
			logging.WarnWithContext(logger, "detection skipped", "detection_rejected",
				logging.String(logging.FieldStream, stream),
				logging.Int(logging.FieldFrameIndex, frame.Index),
				logging.Error(rejection),
				logging.String(logging.FieldErrorHint, "add the label to labels.vocabulary or fix the detector output"),
				logging.String(logging.FieldImpact, "detection ignored for this frame"),
			)
			if r.metrics != nil {
				r.metrics.RejectedDets.Add(1)
			}
		}
		dets = kept
	}

	set, hasErrorClass, err := extractor.Extract(dets)
	if err != nil {
		return divergence.Observation{}, nil, err
	}
	return divergence.Observation{Labels: set, HasErrorClass: hasErrorClass}, extractor.Filter(dets), nil
}

func (r *Runner) finalize(logger *slog.Logger, state *runState, lastTime float64) {
	if interval, ok := state.seg.Finalize(lastTime); ok {
		r.record(logger, state, *interval)
	}
	if r.metrics != nil {
		r.metrics.SetOpen(false)
	}
}

func (r *Runner) record(logger *slog.Logger, state *runState, interval segment.Interval) {
	state.result.Findings = append(state.result.Findings, Finding{
		Interval:      interval,
		Snapshot:      state.snapshot,
		SnapshotFrame: state.snapshotFrame,
	})
	state.snapshot = nil
	state.snapshotFrame = 0
	if r.metrics != nil {
		r.metrics.Intervals.Add(1)
		r.metrics.SetOpen(false)
	}
	logger.Info("divergence interval",
		logging.Float64("start", interval.Start),
		logging.Float64("end", interval.End),
		logging.Strings("cause", interval.Cause.Sorted()),
	)
}

func (r *Runner) logProgress(logger *slog.Logger, state *runState, index int) {
	if percent, ok := state.sampler.Observe(index); ok {
		logger.Info("comparison progress",
			logging.Float64("percent", percent),
			logging.Int(logging.FieldFrameIndex, index),
			logging.Int("intervals", len(state.result.Findings)),
		)
	}
}

func (r *Runner) emit(event FrameEvent) {
	if r.onFrame != nil {
		r.onFrame(event)
	}
}

func cloneImage(src image.Image) image.Image {
	if src == nil {
		return nil
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return dst
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrDecode):
		return "check that both videos decode with ffmpeg and share a frame rate"
	case errors.Is(err, services.ErrUnknownLabel), errors.Is(err, services.ErrInvalidDetection):
		return "extend labels.vocabulary or set engine.unknown_label_policy = \"skip\""
	case errors.Is(err, services.ErrSequence):
		return "frame source delivered frames out of order"
	default:
		return "check detector availability and logs"
	}
}
