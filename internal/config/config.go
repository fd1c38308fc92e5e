package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Backend describes how the case-management backend is reached.
type Backend struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	RequestTimeout int    `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// Tracker contains task polling settings.
type Tracker struct {
	PollIntervalMillis int  `toml:"poll_interval_ms"`
	TimeoutSeconds     int  `toml:"timeout_seconds"`
	MaxPollFailures    int  `toml:"max_poll_failures"`
	PollWorkers        int  `toml:"poll_workers"`
	InferProgress      bool `toml:"infer_progress"`
}

// Notifications contains configuration for task notifications.
type Notifications struct {
	NtfyTopic        string `toml:"ntfy_topic"`
	RequestTimeout   int    `toml:"request_timeout"`
	RedisAddress     string `toml:"redis_address"`
	RedisPassword    string `toml:"redis_password"`
	RedisDB          int    `toml:"redis_db"`
	RedisChannel     string `toml:"redis_channel"`
	FeedSize         int    `toml:"feed_size"`
	RetentionSeconds int    `toml:"retention_seconds"`
	Started          bool   `toml:"started"`
	Completed        bool   `toml:"completed"`
	Failed           bool   `toml:"failed"`
	Cancelled        bool   `toml:"cancelled"`
	Submissions      bool   `toml:"submissions"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for casetrack.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories, daemon API bind address and token
//   - Backend: case-management backend URL and credentials
//   - Tracker: poll interval, wall-clock timeout, failure threshold
//   - Notifications: ntfy, Redis fan-out, in-memory feed, per-event toggles
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Backend       Backend       `toml:"backend"`
	Tracker       Tracker       `toml:"tracker"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
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
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("casetrack.toml")
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

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file that mirrors the tracked task list.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "tasks.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "casetrackd.lock")
}

// PIDPath returns the file the running daemon records its pid in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "casetrackd.pid")
}

// LogPath returns the JSON log file the daemon tees every record to.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "casetrack.log")
}

// PollInterval returns the delay between status polls of a single task.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Tracker.PollIntervalMillis) * time.Millisecond
}

// TaskTimeout returns the wall-clock ceiling for a tracked task.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Tracker.TimeoutSeconds) * time.Second
}

// NotificationRetention returns how long de-duplication markers survive a terminal task.
func (c *Config) NotificationRetention() time.Duration {
	return time.Duration(c.Notifications.RetentionSeconds) * time.Second
}

// BackendTimeout returns the per-request timeout for backend calls.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Second
}

// DaemonURL returns the base URL the CLI uses to reach the daemon API.
func (c *Config) DaemonURL() string {
	bind := strings.TrimSpace(c.Paths.APIBind)
	if bind == "" {
		bind = defaultAPIBind
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	if strings.HasPrefix(bind, "0.0.0.0:") {
		bind = "127.0.0.1:" + strings.TrimPrefix(bind, "0.0.0.0:")
	}
	return "http://" + bind
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

// NotificationTimeout returns the per-request timeout for notification sinks.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}
