package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"vdiff/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "runs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MinFreeMB = 0
	cfgVal.History.Path = filepath.Join(base, "state", "history.db")
	cfgVal.Detector.URL = "http://127.0.0.1:0/v1/detect"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDetectionsFile switches the detector to a recorded detections file.
func WithDetectionsFile(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Detector.Mode = "file"
		b.cfg.Detector.DetectionsFile = path
	}
}

// WithDetectorURL points the HTTP detector at url.
func WithDetectorURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Detector.Mode = "http"
		b.cfg.Detector.URL = url
	}
}

// WithStubbedBinaries puts stub executables for names on PATH and points the
// ffmpeg settings at them. Each stub answers -version with
// "<name> version stub" and exits 0 for anything else. Defaults to ffmpeg and
// ffprobe.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			script := fmt.Sprintf("#!/bin/sh\n[ \"$1\" = \"-version\" ] && echo \"%s version stub\"\nexit 0\n", name)
			if err := os.WriteFile(filepath.Join(binDir, name), []byte(script), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
			switch name {
			case "ffmpeg":
				b.cfg.FFmpeg.FFmpegBinary = name
			case "ffprobe":
				b.cfg.FFmpeg.FFprobeBinary = name
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
