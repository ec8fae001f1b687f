package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"vdiff/internal/config"
	"vdiff/internal/divergence"
	"vdiff/internal/fileutil"
	"vdiff/internal/history"
	"vdiff/internal/logging"
	"vdiff/internal/media/frames"
	"vdiff/internal/metrics"
	"vdiff/internal/notifications"
	"vdiff/internal/pipeline"
	"vdiff/internal/report"
	"vdiff/internal/segment"
	"vdiff/internal/services"
	"vdiff/internal/workspace"
)

// ArchivedDetectionsName is the copy of a recorded detections file kept next
// to the report.
const ArchivedDetectionsName = "detections.json"

// fpsTolerance absorbs rounding between ffprobe's rational frame rates.
const fpsTolerance = 0.01

// Stream is a decoded video stream.
type Stream interface {
	pipeline.Source
	FPS() float64
	Close() error
}

// Opener opens the stream at path.
type Opener func(ctx context.Context, path string) (Stream, error)

// Request describes one comparison.
type Request struct {
	Mode      divergence.Mode
	Reference string
	Candidate string
	// MetricsAddr, when set, serves /metrics for the duration of the run.
	MetricsAddr   string
	SkipPreflight bool
}

// Outcome is what a finished or aborted run left behind.
type Outcome struct {
	RunID  string
	Dir    string
	Report report.Report
	Files  report.Files
	Result *pipeline.Result
}

// Session wires config to the engine for successive runs.
type Session struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *history.Store
	notifier notifications.Service
	open     Opener
	detector pipeline.Detector
	now      func() time.Time
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHistory records runs in store.
func WithHistory(store *history.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithNotifier publishes run events through n.
func WithNotifier(n notifications.Service) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithOpener replaces the ffmpeg-backed stream opener.
func WithOpener(open Opener) Option {
	return func(s *Session) {
		if open != nil {
			s.open = open
		}
	}
}

// WithDetector replaces the detector built from config.
func WithDetector(d pipeline.Detector) Option {
	return func(s *Session) { s.detector = d }
}

// WithClock overrides the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Session for cfg.
func New(cfg *config.Config, opts ...Option) *Session {
	s := &Session{
		cfg:      cfg,
		logger:   logging.NewNop(),
		notifier: notifications.NewService(cfg),
		now:      time.Now,
	}
	s.open = s.openFFmpeg
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes req. The returned Outcome is non-nil whenever the workspace was
// created, including failed and cancelled runs; the error reports why the run
// did not complete.
func (s *Session) Run(ctx context.Context, req Request) (outcome *Outcome, err error) {
	cfg := s.cfg
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "run", "config is required", nil)
	}
	mode, err := divergence.ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Candidate) == "" {
		return nil, services.Wrap(services.ErrValidation, "session", "run", "candidate path required", nil)
	}
	if mode == divergence.ModeDual && strings.TrimSpace(req.Reference) == "" {
		return nil, services.Wrap(services.ErrValidation, "session", "run", "reference path required in dual mode", nil)
	}
	if mode == divergence.ModeSingle {
		req.Reference = ""
	}

	eng, err := buildEngine(cfg, mode)
	if err != nil {
		return nil, err
	}
	if !req.SkipPreflight {
		if err := s.preflight(ctx); err != nil {
			return nil, err
		}
	}
	det, err := s.buildDetector()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithMode(ctx, string(mode))

	ws, err := workspace.Acquire(cfg.Paths.OutputDir, runID)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "workspace", cfg.Paths.OutputDir, err)
	}
	defer func() {
		if releaseErr := ws.Release(err != nil); releaseErr != nil {
			s.logger.Warn("release workspace failed", logging.Error(releaseErr))
		}
	}()

	logPath := ""
	if cfg.Paths.LogDir != "" {
		logPath = filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("run-%s.log", runID))
	}
	logger, logCloser, err := logging.OpenRunLog(s.logger, logPath, runID)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "run log", logPath, err)
	}
	defer logCloser.Close()
	logger = logging.WithContext(ctx, logger)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "run-*.log", Exclude: []string{logPath}},
	)

	m := metrics.New()
	if addr := strings.TrimSpace(req.MetricsAddr); addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if serveErr := m.Serve(metricsCtx, addr); serveErr != nil {
				logging.WarnWithContext(logger, "metrics listener failed", "metrics_listen_failed",
					logging.Error(serveErr),
					logging.String("addr", addr),
					logging.String(logging.FieldImpact, "run continues without /metrics"),
				)
			}
		}()
	}

	started := s.now()
	candidate, reference, err := s.openStreams(ctx, req)
	if err != nil {
		s.notifyFailure(ctx, logger, req, "open", err)
		return &Outcome{RunID: runID, Dir: ws.Dir}, err
	}
	defer candidate.Close()
	if reference != nil {
		defer reference.Close()
	}

	fps := candidate.FPS()
	stride := cfg.Engine.StrideFor(fps)
	pcfg := pipeline.Config{
		Mode:   mode,
		Stride: stride,
		Segment: segment.Config{
			StartConfirmationFrames: cfg.Engine.StartConfirmationFor(fps, stride),
			EndDebounceFrames:       cfg.Engine.EndDebounceFrames,
			RearmAfterClose:         cfg.Engine.RearmAfterClose,
		},
		Policy:   eng.policy,
		Prefetch: cfg.Engine.Prefetch,
	}
	if counted, ok := candidate.(interface{ FrameCount() int }); ok {
		pcfg.TotalFrames = counted.FrameCount()
	}
	comps := eng.comps
	comps.Detector = det

	runOpts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithMetrics(m)}
	var annotations *report.AnnotationWriter
	if cfg.Report.WriteAnnotations {
		annotations, err = report.NewAnnotationWriter(ws.Path(report.AnnotationsFileName))
		if err != nil {
			return &Outcome{RunID: runID, Dir: ws.Dir}, err
		}
		runOpts = append(runOpts, pipeline.WithFrameHook(annotations.Record))
	}
	runner, err := pipeline.New(pcfg, comps, runOpts...)
	if err != nil {
		if annotations != nil {
			_ = annotations.Close()
		}
		return &Outcome{RunID: runID, Dir: ws.Dir}, err
	}

	s.recordStart(ctx, logger, &history.Run{
		ID:            runID,
		Mode:          string(mode),
		ReferencePath: req.Reference,
		CandidatePath: req.Candidate,
		FPS:           fps,
		Stride:        stride,
		OutputDir:     ws.Dir,
		StartedAt:     started,
	})

	var reader pipeline.Source
	if reference != nil {
		reader = reference
	}
	result, runErr := runner.Run(ctx, candidate, reader)
	if annotations != nil {
		if closeErr := annotations.Close(); closeErr != nil {
			logging.WarnWithContext(logger, "annotation sidecar incomplete", "annotations_failed",
				logging.Error(closeErr),
				logging.String(logging.FieldImpact, "annotations.jsonl may be truncated"),
			)
		}
	}

	finished := s.now()
	rep := report.Build(result, eng.vocab, eng.localizer, report.Meta{
		Reference:  req.Reference,
		Candidate:  req.Candidate,
		FPS:        fps,
		Status:     services.FailureStatus(runErr),
		Error:      runErr,
		StartedAt:  started,
		FinishedAt: finished,
		Counters:   m.Snapshot(),
	})
	rep.RunID = runID
	rep.Mode = string(mode)

	var findings []pipeline.Finding
	if result != nil {
		findings = result.Findings
	}
	files, writeErr := report.Write(ws.Dir, rep, findings, report.SnapshotOptions{
		Quality:  cfg.Report.SnapshotQuality,
		MaxWidth: cfg.Report.SnapshotMaxWidth,
	})
	if writeErr != nil {
		logging.ErrorWithContext(logger, "write report failed", "report_failed",
			logging.Error(writeErr),
			logging.String(logging.FieldErrorHint, "check free space and permissions of paths.output_dir"),
		)
		if runErr == nil {
			runErr = writeErr
		}
	}
	if s.detector == nil && cfg.Detector.Mode == "file" {
		sum, copyErr := fileutil.CopyFileVerified(cfg.Detector.DetectionsFile, ws.Path(ArchivedDetectionsName))
		if copyErr != nil {
			logger.Warn("archive detections file failed", logging.Error(copyErr))
		} else {
			logger.Debug("detections archived", logging.String("sha256", sum))
		}
	}

	s.recordFinish(ctx, logger, runID, rep)
	s.notifyResult(ctx, logger, req, rep, runErr, finished.Sub(started))

	outcome = &Outcome{RunID: runID, Dir: ws.Dir, Report: rep, Files: files, Result: result}
	return outcome, runErr
}

func (s *Session) openStreams(ctx context.Context, req Request) (Stream, Stream, error) {
	candidate, err := s.open(ctx, req.Candidate)
	if err != nil {
		return nil, nil, err
	}
	if req.Reference == "" {
		return candidate, nil, nil
	}
	reference, err := s.open(ctx, req.Reference)
	if err != nil {
		_ = candidate.Close()
		return nil, nil, err
	}
	if refFPS, candFPS := reference.FPS(), candidate.FPS(); math.Abs(refFPS-candFPS) > fpsTolerance {
		_ = reference.Close()
		_ = candidate.Close()
		return nil, nil, &frames.DecodeError{
			Path:   req.Reference,
			Reason: fmt.Sprintf("frame rate %.3f does not match candidate %.3f", refFPS, candFPS),
		}
	}
	return candidate, reference, nil
}

func (s *Session) openFFmpeg(ctx context.Context, path string) (Stream, error) {
	opts, err := frames.Describe(ctx, s.cfg.FFmpeg.FFprobeBinary, path, s.cfg.FFmpeg.ScaleWidth)
	if err != nil {
		return nil, err
	}
	opts.Binary = s.cfg.FFmpeg.FFmpegBinary
	opts.HWAccel = s.cfg.FFmpeg.HWAccel
	reader, err := frames.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return reader, nil
}
