package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"vdiff/internal/history"
	"vdiff/internal/testsupport"
)

func TestCreateAndFinishRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	run := testsupport.NewRun(t, store, "run-1", "/videos/b.mp4")
	if run.Status != history.StatusRunning {
		t.Fatalf("expected running status, got %q", run.Status)
	}
	if run.Stride != 1 {
		t.Fatalf("expected stride defaulted to 1, got %d", run.Stride)
	}

	intervals := []history.Interval{
		{Seq: 1, Start: 0.3, End: 0.5, Cause: "Cel", SnapshotPath: "image_1.jpg"},
		{Seq: 2, Start: 0.6, End: 0.7, Cause: "Cel, Hots"},
	}
	if err := store.AddIntervals(ctx, "run-1", intervals); err != nil {
		t.Fatalf("AddIntervals failed: %v", err)
	}
	if err := store.FinishRun(ctx, "run-1", history.Outcome{
		Status:          history.StatusCompleted,
		FramesDecoded:   7,
		FramesEvaluated: 7,
		ClassifierCalls: 7,
	}); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	fetched, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected run to be found")
	}
	if fetched.Status != history.StatusCompleted || fetched.FramesDecoded != 7 || fetched.ClassifierCalls != 7 {
		t.Fatalf("unexpected run: %#v", fetched)
	}
	if fetched.FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
	if fetched.IntervalCount != 2 {
		t.Fatalf("expected 2 intervals, got %d", fetched.IntervalCount)
	}

	stored, err := store.Intervals(ctx, "run-1")
	if err != nil {
		t.Fatalf("Intervals failed: %v", err)
	}
	if len(stored) != 2 || stored[0].Start != 0.3 || stored[1].Cause != "Cel, Hots" {
		t.Fatalf("unexpected intervals: %#v", stored)
	}
	if stored[0].SnapshotPath != "image_1.jpg" || stored[1].SnapshotPath != "" {
		t.Fatalf("unexpected snapshot paths: %#v", stored)
	}
}

func TestCreateRunValidation(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.CreateRun(ctx, &history.Run{CandidatePath: "b.mp4"}); err == nil {
		t.Fatal("expected error for missing id")
	}
	if err := store.CreateRun(ctx, &history.Run{ID: "x"}); err == nil {
		t.Fatal("expected error for missing candidate path")
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	err := store.FinishRun(context.Background(), "missing", history.Outcome{Status: history.StatusFailed})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestGetRunByPrefix(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRun(t, store, "abc123", "b.mp4")
	testsupport.NewRun(t, store, "abd456", "b.mp4")

	run, err := store.GetRun(ctx, "abc")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil || run.ID != "abc123" {
		t.Fatalf("expected abc123, got %#v", run)
	}
	if _, err := store.GetRun(ctx, "ab"); err == nil {
		t.Fatal("expected ambiguous prefix error")
	}
	missing, err := store.GetRun(ctx, "zzz")
	if err != nil || missing != nil {
		t.Fatalf("expected nil run for unknown id, got %#v, %v", missing, err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		run := &history.Run{ID: id, Mode: "dual", CandidatePath: "b.mp4", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Fatalf("unexpected order: %v", ids(runs))
	}
	all, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
}

func TestSubSecondTimestampsOrderChronologically(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	starts := map[string]time.Time{
		"whole":  base,
		"tenth":  base.Add(100 * time.Millisecond),
		"micros": base.Add(120 * time.Microsecond),
	}
	for id, started := range starts {
		run := &history.Run{ID: id, CandidatePath: "b.mp4", StartedAt: started}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
		if err := store.FinishRun(ctx, id, history.Outcome{Status: history.StatusCompleted}); err != nil {
			t.Fatalf("FinishRun %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if got := ids(runs); len(got) != 3 || got[0] != "tenth" || got[1] != "micros" || got[2] != "whole" {
		t.Fatalf("unexpected order: %v", got)
	}
	if !runs[2].StartedAt.Equal(base) {
		t.Fatalf("started_at round trip: got %v", runs[2].StartedAt)
	}

	removed, err := store.Prune(ctx, base.Add(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected the two runs before the cutoff pruned, got %d", removed)
	}
}

func TestGetRunTreatsWildcardsLiterally(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRun(t, store, "abc123", "b.mp4")

	for _, prefix := range []string{"%", "_", "a_c", "ab%"} {
		run, err := store.GetRun(ctx, prefix)
		if err != nil {
			t.Fatalf("GetRun(%q) failed: %v", prefix, err)
		}
		if run != nil {
			t.Fatalf("GetRun(%q) matched %s", prefix, run.ID)
		}
	}
}

func TestPruneKeepsRunningAndCascades(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	old := time.Now().Add(-60 * 24 * time.Hour)

	for _, id := range []string{"finished", "active"} {
		if err := store.CreateRun(ctx, &history.Run{ID: id, CandidatePath: "b.mp4", StartedAt: old}); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
	}
	testsupport.NewRun(t, store, "recent", "b.mp4")
	if err := store.AddIntervals(ctx, "finished", []history.Interval{{Seq: 1, Start: 1, End: 2, Cause: "Cel"}}); err != nil {
		t.Fatalf("AddIntervals: %v", err)
	}
	for _, id := range []string{"finished", "recent"} {
		if err := store.FinishRun(ctx, id, history.Outcome{Status: history.StatusCompleted}); err != nil {
			t.Fatalf("FinishRun %s: %v", id, err)
		}
	}

	removed, err := store.Prune(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 run pruned, got %d", removed)
	}
	runs, _ := store.ListRuns(ctx, 0)
	got := ids(runs)
	if len(got) != 2 {
		t.Fatalf("unexpected remaining runs: %v", got)
	}
	intervals, err := store.Intervals(ctx, "finished")
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	if len(intervals) != 0 {
		t.Fatalf("expected intervals removed by cascade, got %#v", intervals)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := history.OpenPath(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func ids(runs []*history.Run) []string {
	out := make([]string, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.ID)
	}
	return out
}
