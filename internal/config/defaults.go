package config

const (
	defaultConfigPath        = "~/.config/modelscanner/config.toml"
	defaultTempDir           = "~/.local/share/modelscanner/tmp"
	defaultDataDir           = "~/.local/share/modelscanner"
	defaultLogDir            = "~/.local/share/modelscanner/logs"
	defaultRegion            = "auto"
	defaultStaleAgeDays      = 30
	defaultDockerBinary      = "docker"
	defaultImage             = "civitai-model-scanner"
	defaultCommandTimeout    = 3600
	defaultDownloadTimeout   = 7200
	defaultMinConversionSize = 1024 * 1024
	defaultCallbackTimeout   = 30
	defaultUserAgent         = "modelscanner/dev"
	defaultQueuePollInterval = 5
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120
	defaultMaxAttempts       = 10
	defaultRetryBackoff      = 30
	defaultAPIBind           = "127.0.0.1:5000"
	defaultCleanupCutoff     = 24
	defaultLocalMaxAge       = 48
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults. Workers of
// zero resolves to the CPU count during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			TempDir: defaultTempDir,
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Storage: Storage{
			Region:       defaultRegion,
			StaleAgeDays: defaultStaleAgeDays,
		},
		Scanner: Scanner{
			DockerBinary:           defaultDockerBinary,
			Image:                  defaultImage,
			CommandTimeout:         defaultCommandTimeout,
			DownloadTimeout:        defaultDownloadTimeout,
			MinConversionSizeBytes: defaultMinConversionSize,
		},
		Callback: Callback{
			Timeout:   defaultCallbackTimeout,
			UserAgent: defaultUserAgent,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
			MaxAttempts:       defaultMaxAttempts,
			RetryBackoff:      defaultRetryBackoff,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Cleanup: Cleanup{
			CutoffHours:      defaultCleanupCutoff,
			LocalMaxAgeHours: defaultLocalMaxAge,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
