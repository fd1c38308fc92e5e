package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBackend()
	c.normalizeTracker()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeBackend() {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendBaseURL
	}
	c.Backend.Token = strings.TrimSpace(c.Backend.Token)
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = defaultBackendRequestTimeout
	}
	c.Backend.UserAgent = strings.TrimSpace(c.Backend.UserAgent)
	if c.Backend.UserAgent == "" {
		c.Backend.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeTracker() {
	if c.Tracker.PollWorkers <= 0 {
		c.Tracker.PollWorkers = defaultPollWorkers
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.RedisAddress = strings.TrimSpace(c.Notifications.RedisAddress)
	c.Notifications.RedisChannel = strings.TrimSpace(c.Notifications.RedisChannel)
	if c.Notifications.RedisChannel == "" {
		c.Notifications.RedisChannel = defaultRedisChannel
	}
	if c.Notifications.FeedSize <= 0 {
		c.Notifications.FeedSize = defaultFeedSize
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.RetentionSeconds < 0 {
		c.Notifications.RetentionSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
