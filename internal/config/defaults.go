package config

const (
	defaultConfigPath            = "~/.config/casetrack/config.toml"
	defaultStateDir              = "~/.local/share/casetrack"
	defaultLogDir                = "~/.local/share/casetrack/logs"
	defaultAPIBind               = "127.0.0.1:7610"
	defaultBackendBaseURL        = "http://127.0.0.1:8000/api"
	defaultBackendRequestTimeout = 15
	defaultUserAgent             = "casetrack/0.1.0"
	defaultPollIntervalMillis    = 2000
	defaultTaskTimeoutSeconds    = 300
	defaultMaxPollFailures       = 3
	defaultPollWorkers           = 16
	defaultNotifyRequestTimeout  = 10
	defaultRedisChannel          = "casetrack:notifications"
	defaultFeedSize              = 200
	defaultRetentionSeconds      = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Backend: Backend{
			BaseURL:        defaultBackendBaseURL,
			RequestTimeout: defaultBackendRequestTimeout,
			UserAgent:      defaultUserAgent,
		},
		Tracker: Tracker{
			PollIntervalMillis: defaultPollIntervalMillis,
			TimeoutSeconds:     defaultTaskTimeoutSeconds,
			MaxPollFailures:    defaultMaxPollFailures,
			PollWorkers:        defaultPollWorkers,
			InferProgress:      true,
		},
		Notifications: Notifications{
			RequestTimeout:   defaultNotifyRequestTimeout,
			RedisChannel:     defaultRedisChannel,
			FeedSize:         defaultFeedSize,
			RetentionSeconds: defaultRetentionSeconds,
			Started:          true,
			Completed:        true,
			Failed:           true,
			Cancelled:        true,
			Submissions:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
