package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeLabels()
	if err := c.normalizeDetector(); err != nil {
		return err
	}
	c.normalizeFFmpeg()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.UnknownLabelPolicy = strings.ToLower(strings.TrimSpace(c.Engine.UnknownLabelPolicy))
	if c.Engine.UnknownLabelPolicy == "" {
		c.Engine.UnknownLabelPolicy = defaultUnknownLabelPolicy
	}
	if c.Engine.Prefetch == 0 {
		c.Engine.Prefetch = defaultPrefetch
	}
}

func (c *Config) normalizeLabels() {
	c.Labels.Vocabulary = trimList(c.Labels.Vocabulary)
	c.Labels.ErrorClass = trimList(c.Labels.ErrorClass)
	c.Labels.Locale = strings.TrimSpace(c.Labels.Locale)
	if c.Labels.Locale == "" {
		c.Labels.Locale = defaultLabelLocale
	}
}

func (c *Config) normalizeDetector() error {
	c.Detector.Mode = strings.ToLower(strings.TrimSpace(c.Detector.Mode))
	if c.Detector.Mode == "" {
		c.Detector.Mode = defaultDetectorMode
	}
	if value, ok := os.LookupEnv("VDIFF_DETECTOR_URL"); ok && strings.TrimSpace(value) != "" {
		c.Detector.URL = value
	}
	c.Detector.URL = strings.TrimSpace(c.Detector.URL)
	if c.Detector.APIKey == "" {
		if value, ok := os.LookupEnv("VDIFF_DETECTOR_API_KEY"); ok {
			c.Detector.APIKey = value
		}
	}
	c.Detector.APIKey = strings.TrimSpace(c.Detector.APIKey)
	if path := strings.TrimSpace(c.Detector.DetectionsFile); path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return fmt.Errorf("detector.detections_file: %w", err)
		}
		c.Detector.DetectionsFile = expanded
	}
	if c.Detector.JPEGQuality == 0 {
		c.Detector.JPEGQuality = defaultJPEGQuality
	}
	return nil
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	c.FFmpeg.HWAccel = strings.ToLower(strings.TrimSpace(c.FFmpeg.HWAccel))
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	expanded, err := expandPath(strings.TrimSpace(c.History.Path))
	if err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.History.Path = expanded
	return nil
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("VDIFF_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimList(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
