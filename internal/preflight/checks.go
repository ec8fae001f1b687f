package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"vdiff/internal/config"
	"vdiff/internal/deps"
	"vdiff/internal/services/detector"
)

// CheckDetector verifies that the detection endpoint answers. It uses a
// 10-second timeout and a single attempt.
func CheckDetector(ctx context.Context, cfg config.Detector) Result {
	const name = "Detector"
	if cfg.URL == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := detector.NewClient(detector.Config{
		URL:            cfg.URL,
		APIKey:         cfg.APIKey,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, detector.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeDetectorError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.URL)}
}

// CheckDetectionsFile verifies that a recorded detections file exists and parses.
func CheckDetectionsFile(path string) Result {
	const name = "Detections file"
	if path == "" {
		return Result{Name: name, Detail: "detector.detections_file not set"}
	}
	classifier, err := detector.LoadFile(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d streams)", path, len(classifier.Streams()))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minFreeMB megabytes available. A zero minimum always passes.
func CheckFreeSpace(name, path string, minFreeMB uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	freeMB := stat.Bavail * uint64(stat.Bsize) / (1 << 20)
	if freeMB < minFreeMB {
		return Result{Name: name, Detail: fmt.Sprintf("%d MB free, need %d MB", freeMB, minFreeMB)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d MB free", freeMB)}
}

// CheckSystemDeps evaluates the external binaries for the given config.
// The deps command and the run preflight share this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.WithVersions(ctx, deps.CheckBinaries(deps.Requirements(cfg)))
}

func summarizeDetectorError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (detector unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (detector unreachable)"
	}
	return err.Error()
}
