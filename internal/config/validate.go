package config

import (
	"slices"
	"sort"

	"golang.org/x/text/language"

	"vdiff/internal/services"
)

// Validate ensures the configuration is usable. Every failure is a
// *services.ConfigError so callers can fail fast before any frame is read.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateLabels(); err != nil {
		return err
	}
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateReport(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	e := c.Engine
	if e.ConfidenceThreshold < 0 || e.ConfidenceThreshold > 1 {
		return services.NewConfigError("engine.confidence_threshold", "must be between 0 and 1")
	}
	if e.PixelSimilarityThreshold < -1 || e.PixelSimilarityThreshold > 1 {
		return services.NewConfigError("engine.pixel_similarity_threshold", "must be between -1 and 1")
	}
	if e.SimilarityWidth < 0 {
		return services.NewConfigError("engine.similarity_width", "must be >= 0")
	}
	if e.StartConfirmationFrames < 0 {
		return services.NewConfigError("engine.start_confirmation_frames", "must be >= 0")
	}
	if e.StartConfirmationSeconds < 0 {
		return services.NewConfigError("engine.start_confirmation_seconds", "must be >= 0")
	}
	if e.EndDebounceFrames < 1 {
		return services.NewConfigError("engine.end_debounce_frames", "must be >= 1")
	}
	if e.SamplingStride < 0 {
		return services.NewConfigError("engine.sampling_stride", "must be >= 1 (or 0 to derive from process_fps)")
	}
	if e.SamplingStride == 0 && e.ProcessFPS <= 0 {
		return services.NewConfigError("engine.process_fps", "must be positive when engine.sampling_stride is 0")
	}
	switch e.UnknownLabelPolicy {
	case "skip", "abort":
	default:
		return services.NewConfigError("engine.unknown_label_policy", "must be one of: skip, abort")
	}
	if e.Prefetch < 1 {
		return services.NewConfigError("engine.prefetch", "must be positive")
	}
	return nil
}

func (c *Config) validateLabels() error {
	if len(c.Labels.Vocabulary) == 0 {
		return services.NewConfigError("labels.vocabulary", "must include at least one label")
	}
	for _, id := range c.Labels.ErrorClass {
		if !slices.Contains(c.Labels.Vocabulary, id) {
			return services.NewConfigError("labels.error_class", "references %q which is not in labels.vocabulary", id)
		}
	}
	if _, err := language.Parse(c.Labels.Locale); err != nil {
		return services.NewConfigError("labels.locale", "is not a valid BCP 47 tag (%v)", err)
	}
	locales := make([]string, 0, len(c.Labels.DisplayNames))
	for locale := range c.Labels.DisplayNames {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	for _, locale := range locales {
		if _, err := language.Parse(locale); err != nil {
			return services.NewConfigError("labels.display_names", "has invalid locale %q", locale)
		}
	}
	return nil
}

func (c *Config) validateDetector() error {
	switch c.Detector.Mode {
	case "http":
		if c.Detector.URL == "" {
			return services.NewConfigError("detector.url", "must be set when detector.mode is http (or set VDIFF_DETECTOR_URL)")
		}
	case "file":
	default:
		return services.NewConfigError("detector.mode", "must be one of: http, file")
	}
	if c.Detector.TimeoutSeconds <= 0 {
		return services.NewConfigError("detector.timeout_seconds", "must be positive")
	}
	if c.Detector.RetryMaxAttempts < 1 {
		return services.NewConfigError("detector.retry_max_attempts", "must be >= 1")
	}
	if c.Detector.RetryBackoffMillis < 0 {
		return services.NewConfigError("detector.retry_backoff_ms", "must be >= 0")
	}
	if c.Detector.JPEGQuality < 1 || c.Detector.JPEGQuality > 100 {
		return services.NewConfigError("detector.jpeg_quality", "must be between 1 and 100")
	}
	if c.FFmpeg.ScaleWidth < 0 {
		return services.NewConfigError("ffmpeg.scale_width", "must be >= 0")
	}
	return nil
}

func (c *Config) validateReport() error {
	if c.Report.SnapshotQuality < 1 || c.Report.SnapshotQuality > 100 {
		return services.NewConfigError("report.snapshot_quality", "must be between 1 and 100")
	}
	if c.Report.SnapshotMaxWidth < 0 {
		return services.NewConfigError("report.snapshot_max_width", "must be >= 0")
	}
	if c.History.RetentionDays < 0 {
		return services.NewConfigError("history.retention_days", "must be >= 0")
	}
	if c.Paths.MinFreeMB < 0 {
		return services.NewConfigError("paths.min_free_mb", "must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.MinIntervals < 0 {
		return services.NewConfigError("notifications.min_intervals", "must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return services.NewConfigError("logging.format", "must be one of: console, json")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return services.NewConfigError("logging.level", "must be one of: debug, info, warn, error")
	}
	if c.Logging.RetentionDays < 0 {
		return services.NewConfigError("logging.retention_days", "must be >= 0")
	}
	return nil
}
