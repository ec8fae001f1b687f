package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	MinFreeMB int    `toml:"min_free_mb"`
}

// Engine contains the segmentation engine thresholds and windows.
type Engine struct {
	ConfidenceThreshold      float64 `toml:"confidence_threshold"`
	PixelSimilarityThreshold float64 `toml:"pixel_similarity_threshold"`
	SimilarityWidth          int     `toml:"similarity_width"`
	// StartConfirmationFrames counts evaluated frames, not raw frames.
	StartConfirmationFrames int `toml:"start_confirmation_frames"`
	// StartConfirmationSeconds overrides StartConfirmationFrames when > 0.
	StartConfirmationSeconds float64 `toml:"start_confirmation_seconds"`
	EndDebounceFrames        int     `toml:"end_debounce_frames"`
	// SamplingStride of 0 derives the stride from ProcessFPS.
	SamplingStride     int     `toml:"sampling_stride"`
	ProcessFPS         float64 `toml:"process_fps"`
	RearmAfterClose    bool    `toml:"rearm_after_close"`
	UnknownLabelPolicy string  `toml:"unknown_label_policy"`
	Prefetch           int     `toml:"prefetch"`
}

// Labels contains the detector label vocabulary and its error class.
type Labels struct {
	Vocabulary   []string                     `toml:"vocabulary"`
	ErrorClass   []string                     `toml:"error_class"`
	Locale       string                       `toml:"locale"`
	DisplayNames map[string]map[string]string `toml:"display_names"`
}

// Detector contains configuration for the object detector collaborator.
type Detector struct {
	Mode               string `toml:"mode"`
	URL                string `toml:"url"`
	APIKey             string `toml:"api_key"`
	DetectionsFile     string `toml:"detections_file"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	RetryMaxAttempts   int    `toml:"retry_max_attempts"`
	RetryBackoffMillis int    `toml:"retry_backoff_ms"`
	JPEGQuality        int    `toml:"jpeg_quality"`
}

// FFmpeg contains frame decoding settings.
type FFmpeg struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	HWAccel       string `toml:"hwaccel"`
	ScaleWidth    int    `toml:"scale_width"`
}

// Report contains output artefact settings.
type Report struct {
	SnapshotQuality  int  `toml:"snapshot_quality"`
	SnapshotMaxWidth int  `toml:"snapshot_max_width"`
	WriteAnnotations bool `toml:"write_annotations"`
}

// History contains run history database settings.
type History struct {
	Path          string `toml:"path"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	RunFailed      bool   `toml:"run_failed"`
	MinIntervals   int    `toml:"min_intervals"`
}

// Metrics contains the optional prometheus listener.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for vdiff.
//
// Configuration sections by subsystem:
//   - Paths: output, state, and log directories
//   - Engine: similarity gate, confidence filter, segmentation windows
//   - Labels: detector vocabulary, error class, display names
//   - Detector: HTTP or precomputed-file detection source
//   - FFmpeg: decoder binaries and frame scaling
//   - Report: snapshot and annotation artefacts
//   - History: sqlite run history
//   - Notifications: ntfy push notification settings
//   - Metrics: prometheus listener
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	Labels        Labels        `toml:"labels"`
	Detector      Detector      `toml:"detector"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Report        Report        `toml:"report"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vdiff/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strings.TrimSpace(strict.String()))
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vdiff.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a comparison run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.History.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}
	return nil
}

// StartConfirmationFor returns the start confirmation window in evaluated
// frames for a stream decoded at fps and sampled every stride frames. A
// seconds-based window counts the triggering frame, so it yields one further
// frame less than the evaluated frames it spans.
func (e Engine) StartConfirmationFor(fps float64, stride int) int {
	if e.StartConfirmationSeconds <= 0 || fps <= 0 {
		return e.StartConfirmationFrames
	}
	if stride < 1 {
		stride = 1
	}
	span := int(e.StartConfirmationSeconds*fps/float64(stride) + 0.5)
	return max(span-1, 0)
}

// StrideFor returns the sampling stride for a stream decoded at fps.
func (e Engine) StrideFor(fps float64) int {
	if e.SamplingStride > 0 {
		return e.SamplingStride
	}
	if e.ProcessFPS <= 0 || fps <= 0 {
		return 1
	}
	stride := int(fps / e.ProcessFPS)
	if stride < 1 {
		return 1
	}
	return stride
}

// DisplayNameTable returns a copy of the configured display names keyed by
// locale tag and then label id.
func (l Labels) DisplayNameTable() map[string]map[string]string {
	out := make(map[string]map[string]string, len(l.DisplayNames))
	for locale, names := range l.DisplayNames {
		copied := make(map[string]string, len(names))
		for id, name := range names {
			copied[id] = name
		}
		out[locale] = copied
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
