package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

const runColumns = "r.id, r.mode, r.reference_path, r.candidate_path, r.fps, r.stride, r.frames_decoded, r.frames_evaluated, r.classifier_calls, r.status, r.error_message, r.output_dir, r.started_at, r.finished_at, (SELECT COUNT(1) FROM intervals i WHERE i.run_id = r.id)"

// CreateRun records a new run in the running state.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run == nil || strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(run.CandidatePath) == "" {
		return errors.New("candidate path is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.Stride < 1 {
		run.Stride = 1
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, mode, reference_path, candidate_path, fps, stride, status, output_dir, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Mode,
		nullableString(run.ReferencePath),
		run.CandidatePath,
		run.FPS,
		run.Stride,
		run.Status,
		nullableString(run.OutputDir),
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status and counters of a run.
func (s *Store) FinishRun(ctx context.Context, id string, outcome Outcome) error {
	finished := outcome.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, error_message = ?, frames_decoded = ?, frames_evaluated = ?,
         classifier_calls = ?, finished_at = ? WHERE id = ?`,
		outcome.Status,
		nullableString(outcome.ErrorMessage),
		outcome.FramesDecoded,
		outcome.FramesEvaluated,
		outcome.ClassifierCalls,
		formatTime(finished),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// AddIntervals stores the intervals of a run in a single transaction.
func (s *Store) AddIntervals(ctx context.Context, runID string, intervals []Interval) error {
	if len(intervals) == 0 {
		return nil
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin interval tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO intervals (run_id, seq, start_sec, end_sec, cause, snapshot_path) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare interval insert: %w", err)
		}
		defer stmt.Close()

		for _, iv := range intervals {
			if _, err := stmt.ExecContext(ctx, runID, iv.Seq, iv.Start, iv.End, iv.Cause, nullableString(iv.SnapshotPath)); err != nil {
				return fmt.Errorf("insert interval %d: %w", iv.Seq, err)
			}
		}
		return tx.Commit()
	})
}

// GetRun fetches a run by id. It returns nil when the run does not exist.
// A unique id prefix is accepted.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("run id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+` FROM runs r WHERE r.id = ? OR r.id LIKE ? ESCAPE '\' ORDER BY r.id = ? DESC LIMIT 2`,
		id, likeEscaper.Replace(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch {
	case len(runs) == 0:
		return nil, nil
	case runs[0].ID == id || len(runs) == 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs r ORDER BY r.started_at DESC, r.id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Intervals returns the intervals of a run ordered by sequence number.
func (s *Store) Intervals(ctx context.Context, runID string) ([]Interval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, start_sec, end_sec, cause, snapshot_path FROM intervals WHERE run_id = ? ORDER BY seq`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list intervals: %w", err)
	}
	defer rows.Close()

	var out []Interval
	for rows.Next() {
		var (
			iv       Interval
			snapshot sql.NullString
		)
		if err := rows.Scan(&iv.RunID, &iv.Seq, &iv.Start, &iv.End, &iv.Cause, &snapshot); err != nil {
			return nil, err
		}
		iv.SnapshotPath = snapshot.String
		out = append(out, iv)
	}
	return out, rows.Err()
}

// Prune removes finished runs that started before cutoff. Running entries are
// never removed. Intervals are deleted through the foreign key cascade.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM runs WHERE status != ? AND started_at < ?`,
		StatusRunning,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		reference   sql.NullString
		errorMsg    sql.NullString
		outputDir   sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Mode,
		&reference,
		&run.CandidatePath,
		&run.FPS,
		&run.Stride,
		&run.FramesDecoded,
		&run.FramesEvaluated,
		&run.ClassifierCalls,
		&run.Status,
		&errorMsg,
		&outputDir,
		&startedRaw,
		&finishedRaw,
		&run.IntervalCount,
	); err != nil {
		return nil, err
	}
	run.ReferencePath = reference.String
	run.ErrorMessage = errorMsg.String
	run.OutputDir = outputDir.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	return time.Parse(time.RFC3339Nano, value)
}
