package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vdiff/internal/config"
	"vdiff/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("VDIFF_DETECTOR_URL", "")
	t.Setenv("VDIFF_DETECTOR_API_KEY", "")
	t.Setenv("VDIFF_NTFY_TOPIC", "")

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "vdiff", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\noutput_dir = %q\nstate_dir = %q\nlog_dir = %q\nmin_free_mb = 0\n\n",
		cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir)
	fmt.Fprintf(&b, "[detector]\nmode = %q\nurl = %q\napi_key = %q\ndetections_file = %q\n\n",
		cfg.Detector.Mode, cfg.Detector.URL, cfg.Detector.APIKey, cfg.Detector.DetectionsFile)
	fmt.Fprintf(&b, "[history]\npath = %q\nretention_days = %d\n\n", cfg.History.Path, cfg.History.RetentionDays)
	fmt.Fprintf(&b, "[notifications]\nntfy_topic = %q\n", cfg.Notifications.NtfyTopic)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
