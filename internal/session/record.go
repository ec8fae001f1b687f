package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vdiff/internal/deps"
	"vdiff/internal/history"
	"vdiff/internal/logging"
	"vdiff/internal/notifications"
	"vdiff/internal/preflight"
	"vdiff/internal/report"
	"vdiff/internal/services"
)

func (s *Session) preflight(ctx context.Context) error {
	if missing := deps.Missing(deps.CheckBinaries(deps.Requirements(s.cfg))); len(missing) > 0 {
		return services.Wrap(services.ErrNotFound, "preflight", missing[0].Name, missing[0].Detail, nil)
	}
	if failed := preflight.Failed(preflight.RunAll(ctx, s.cfg)); len(failed) > 0 {
		marker := services.ErrValidation
		if failed[0].Name == "Detector" {
			marker = services.ErrExternalTool
		}
		return services.Wrap(marker, "preflight", failed[0].Name, failed[0].Detail, nil)
	}
	return nil
}

// History writes are best effort: a comparison that produced a report is not
// failed because the history database is unavailable.
func (s *Session) recordStart(ctx context.Context, logger *slog.Logger, run *history.Run) {
	if s.store == nil {
		return
	}
	if err := s.store.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(logger, "record run start failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run will be missing from history"),
		)
	}
}

func (s *Session) recordFinish(ctx context.Context, logger *slog.Logger, runID string, rep report.Report) {
	if s.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	intervals := make([]history.Interval, 0, len(rep.Intervals))
	for _, entry := range rep.Intervals {
		intervals = append(intervals, history.Interval{
			Seq:          entry.Seq,
			Start:        entry.Start,
			End:          entry.End,
			Cause:        entry.CauseText,
			SnapshotPath: entry.Snapshot,
		})
	}
	outcome := history.Outcome{
		Status:          rep.Status,
		ErrorMessage:    rep.Error,
		FramesDecoded:   int64(rep.Counters.FramesDecoded),
		FramesEvaluated: int64(rep.Counters.FramesEvaluated),
		ClassifierCalls: int64(rep.Counters.ClassifierCalls),
		FinishedAt:      rep.FinishedAt,
	}
	err := errors.Join(s.store.AddIntervals(ctx, runID, intervals), s.store.FinishRun(ctx, runID, outcome))
	if err != nil {
		logging.WarnWithContext(logger, "record run result failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history shows the run without its result"),
		)
	}
}

func (s *Session) notifyResult(ctx context.Context, logger *slog.Logger, req Request, rep report.Report, runErr error, elapsed time.Duration) {
	switch {
	case runErr == nil:
		s.publish(ctx, logger, notifications.EventRunCompleted, notifications.Payload{
			"runID":     rep.RunID,
			"candidate": req.Candidate,
			"intervals": len(rep.Intervals),
			"duration":  elapsed,
			"report":    report.Text(rep),
		})
	case errors.Is(runErr, context.Canceled):
	default:
		s.notifyFailure(ctx, logger, req, "compare", runErr)
	}
}

func (s *Session) notifyFailure(ctx context.Context, logger *slog.Logger, req Request, stage string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.publish(ctx, logger, notifications.EventRunFailed, notifications.Payload{
		"candidate": req.Candidate,
		"stage":     stage,
		"error":     err.Error(),
	})
}

func (s *Session) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := s.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String("event", string(event)),
			logging.String(logging.FieldErrorHint, fmt.Sprintf("check notifications.ntfy_topic (%s)", event)),
		)
	}
}
