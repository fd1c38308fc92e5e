package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got %q", c.Backend.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("backend.base_url is missing a host: %q", c.Backend.BaseURL)
	}
	return nil
}

func (c *Config) validateTracker() error {
	if err := ensurePositiveMap(map[string]int{
		"tracker.poll_interval_ms":      c.Tracker.PollIntervalMillis,
		"tracker.timeout_seconds":       c.Tracker.TimeoutSeconds,
		"tracker.max_poll_failures":     c.Tracker.MaxPollFailures,
		"tracker.poll_workers":          c.Tracker.PollWorkers,
		"backend.request_timeout":       c.Backend.RequestTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.TaskTimeout() <= c.PollInterval() {
		return errors.New("tracker.timeout_seconds must be longer than tracker.poll_interval_ms")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RedisDB < 0 {
		return errors.New("notifications.redis_db must not be negative")
	}
	if c.Notifications.NtfyTopic != "" {
		parsed, err := url.Parse(c.Notifications.NtfyTopic)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", c.Notifications.NtfyTopic)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
