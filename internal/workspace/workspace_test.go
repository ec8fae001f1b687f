package workspace_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"vdiff/internal/workspace"
)

func TestAcquireCreatesRunDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "runs")
	ws, err := workspace.Acquire(root, "run-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if info, err := os.Stat(ws.Dir); err != nil || !info.IsDir() {
		t.Fatalf("expected run dir %s, err %v", ws.Dir, err)
	}
	if ws.Path("report.txt") != filepath.Join(root, "run-1", "report.txt") {
		t.Fatalf("unexpected path: %s", ws.Path("report.txt"))
	}
	if err := ws.Release(false); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(ws.Dir); err != nil {
		t.Fatalf("expected run dir kept after success: %v", err)
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	root := t.TempDir()
	first, err := workspace.Acquire(root, "a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := workspace.Acquire(root, "b"); !errors.Is(err, workspace.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := first.Release(false); err != nil {
		t.Fatalf("Release: %v", err)
	}
	second, err := workspace.Acquire(root, "b")
	if err != nil {
		t.Fatalf("expected lock to be free after release: %v", err)
	}
	_ = second.Release(false)
}

func TestReleaseRemovesEmptyDirOnFailure(t *testing.T) {
	root := t.TempDir()
	ws, err := workspace.Acquire(root, "empty")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := ws.Release(true); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatalf("expected empty run dir removed, got %v", err)
	}

	ws, err = workspace.Acquire(root, "partial")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := os.WriteFile(ws.Path("image_1.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ws.Release(true); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(ws.Dir); err != nil {
		t.Fatalf("expected non-empty run dir kept: %v", err)
	}
}

func TestAcquireRejectsBadRunID(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"", "..", "a/b"} {
		if _, err := workspace.Acquire(root, id); err == nil {
			t.Fatalf("expected error for run id %q", id)
		}
	}
}
