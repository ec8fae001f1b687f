package config

const (
	defaultOutputDir                = "~/.local/share/vdiff/runs"
	defaultStateDir                 = "~/.local/share/vdiff"
	defaultLogDir                   = "~/.local/share/vdiff/logs"
	defaultHistoryPath              = "~/.local/share/vdiff/history.db"
	defaultMinFreeMB                = 512
	defaultConfidenceThreshold      = 0.6
	defaultPixelSimilarityThreshold = 0.8
	defaultSimilarityWidth          = 320
	defaultStartConfirmationFrames  = 1
	defaultEndDebounceFrames        = 5
	defaultProcessFPS               = 3
	defaultPrefetch                 = 4
	defaultUnknownLabelPolicy       = "abort"
	defaultLabelLocale              = "en"
	defaultDetectorMode             = "http"
	defaultDetectorURL              = "http://127.0.0.1:8090/v1/detect"
	defaultDetectorTimeoutSeconds   = 30
	defaultDetectorRetryAttempts    = 3
	defaultDetectorRetryBackoffMS   = 500
	defaultJPEGQuality              = 90
	defaultFFmpegBinary             = "ffmpeg"
	defaultFFprobeBinary            = "ffprobe"
	defaultSnapshotMaxWidth         = 1280
	defaultHistoryRetentionDays     = 90
	defaultNotifyRequestTimeout     = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			MinFreeMB: defaultMinFreeMB,
		},
		Engine: Engine{
			ConfidenceThreshold:      defaultConfidenceThreshold,
			PixelSimilarityThreshold: defaultPixelSimilarityThreshold,
			SimilarityWidth:          defaultSimilarityWidth,
			StartConfirmationFrames:  defaultStartConfirmationFrames,
			EndDebounceFrames:        defaultEndDebounceFrames,
			ProcessFPS:               defaultProcessFPS,
			UnknownLabelPolicy:       defaultUnknownLabelPolicy,
			Prefetch:                 defaultPrefetch,
		},
		Labels: Labels{
			Vocabulary: []string{"BT", "Wifi", "Cel", "Hots", "Bri", "Dev"},
			ErrorClass: []string{"Cel", "Hots"},
			Locale:     defaultLabelLocale,
			DisplayNames: map[string]map[string]string{
				"en": {"BT": "Bluetooth", "Wifi": "Wi-Fi", "Cel": "Cellular", "Hots": "Tethering", "Bri": "Brightness", "Dev": "Developer"},
				"ja": {"BT": "ブルートゥース", "Wifi": "Wi-Fi", "Cel": "セルラー", "Hots": "テザリング", "Bri": "輝度", "Dev": "開発"},
			},
		},
		Detector: Detector{
			Mode:               defaultDetectorMode,
			URL:                defaultDetectorURL,
			TimeoutSeconds:     defaultDetectorTimeoutSeconds,
			RetryMaxAttempts:   defaultDetectorRetryAttempts,
			RetryBackoffMillis: defaultDetectorRetryBackoffMS,
			JPEGQuality:        defaultJPEGQuality,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Report: Report{
			SnapshotQuality:  defaultJPEGQuality,
			SnapshotMaxWidth: defaultSnapshotMaxWidth,
		},
		History: History{
			Path:          defaultHistoryPath,
			RetentionDays: defaultHistoryRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
