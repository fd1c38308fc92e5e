package testsupport

import (
	"path/filepath"
	"testing"

	"casetrack/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Poll timings are shortened so tracker tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Tracker.PollIntervalMillis = 20
	cfgVal.Tracker.PollWorkers = 4
	cfgVal.Notifications.RetentionSeconds = 0

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

// WithBackendURL points the config at a test backend.
func WithBackendURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.BaseURL = url
	}
}

// WithAPIToken requires bearer auth on the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithTracker overrides poll interval (ms), timeout (s), and failure threshold.
func WithTracker(intervalMillis, timeoutSeconds, maxFailures int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tracker.PollIntervalMillis = intervalMillis
		b.cfg.Tracker.TimeoutSeconds = timeoutSeconds
		b.cfg.Tracker.MaxPollFailures = maxFailures
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
