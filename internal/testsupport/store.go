package testsupport

import (
	"context"
	"testing"

	"vdiff/internal/config"
	"vdiff/internal/history"
)

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun records a running comparison for tests using the provided store.
func NewRun(t testing.TB, store *history.Store, id, candidate string) *history.Run {
	t.Helper()

	run := &history.Run{ID: id, Mode: "single", CandidatePath: candidate}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}
