// Package workspace allocates per-run output directories and serializes
// writers of one output root with an advisory file lock.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const lockFileName = ".vdiff.lock"

// ErrBusy indicates another process holds the output directory lock.
var ErrBusy = errors.New("output directory is in use by another run")

// Workspace is one run's output directory under a locked root.
type Workspace struct {
	Root  string
	Dir   string
	RunID string

	lock *flock.Flock
}

// Acquire locks root and creates root/<runID>. The returned workspace must be
// released with Release.
func Acquire(root, runID string) (*Workspace, error) {
	root = strings.TrimSpace(root)
	runID = strings.TrimSpace(runID)
	if root == "" {
		return nil, errors.New("output directory is empty")
	}
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	lockPath := filepath.Join(root, lockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrBusy, lockPath)
	}

	dir := filepath.Join(root, runID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return &Workspace{Root: root, Dir: dir, RunID: runID, lock: lock}, nil
}

// Path joins name onto the run directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Release unlocks the root. When failed is true and the run directory holds
// no files it is removed.
func (w *Workspace) Release(failed bool) error {
	if w == nil || w.lock == nil {
		return nil
	}
	var cleanupErr error
	if failed {
		cleanupErr = removeIfEmpty(w.Dir)
	}
	if err := w.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	w.lock = nil
	return cleanupErr
}

func removeIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read run directory: %w", err)
	}
	if len(entries) > 0 {
		return nil
	}
	if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove empty run directory: %w", err)
	}
	return nil
}
