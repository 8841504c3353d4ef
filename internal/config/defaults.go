package config

const (
	defaultStagingDir = "~/.local/share/rinkreel/staging"
	defaultOutputDir  = "~/.local/share/rinkreel/output"
	defaultLogDir     = "~/.local/share/rinkreel/logs"
	defaultAPIBind    = "127.0.0.1:7823"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultSegmentWindowMS  = 30_000
	defaultCaptionDisplayMS = 5_000
	defaultFetchConcurrency = 3

	defaultQueuePollInterval = 5

	defaultProviderTimeout        = 60
	defaultProviderRetryAttempts  = 3
	defaultProviderRetryBackoffMS = 500

	defaultNotifyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Provider: Provider{
			RequestTimeout: defaultProviderTimeout,
			RetryAttempts:  defaultProviderRetryAttempts,
			RetryBackoffMS: defaultProviderRetryBackoffMS,
		},
		Processing: Processing{
			SegmentWindowMS:   defaultSegmentWindowMS,
			CaptionDisplayMS:  defaultCaptionDisplayMS,
			FetchConcurrency:  defaultFetchConcurrency,
			QueuePollInterval: defaultQueuePollInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
