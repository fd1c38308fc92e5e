package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"casetrack/internal/api"
	"casetrack/internal/config"
	"casetrack/internal/taskaccess"
	"casetrack/internal/tasks"
)

type commandContext struct {
	configFlag    *string
	daemonURLFlag *string
	tokenFlag     *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, daemonURLFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		daemonURLFlag: daemonURLFlag,
		tokenFlag:     tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) daemonURL() string {
	if c.daemonURLFlag != nil {
		if value := strings.TrimSpace(*c.daemonURLFlag); value != "" {
			return value
		}
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.DaemonURL()
	}
	return "http://127.0.0.1:7610"
}

func (c *commandContext) apiToken() string {
	if c.tokenFlag != nil {
		if value := strings.TrimSpace(*c.tokenFlag); value != "" {
			return value
		}
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Paths.APIToken
	}
	return ""
}

func (c *commandContext) newClient() (*api.Client, error) {
	return api.NewClient(c.daemonURL(), c.apiToken())
}

// withClient runs fn against the daemon API. Commands that need the tracker
// (submit, track, notifications) use this and fail when the daemon is down.
func (c *commandContext) withClient(fn func(*api.Client) error) error {
	client, err := c.newClient()
	if err != nil {
		return err
	}
	return wrapDaemonError(fn(client), c.daemonURL())
}

// withTasks runs fn against the daemon when it answers and against the local
// store otherwise.
func (c *commandContext) withTasks(cmd *cobra.Command, fn func(taskaccess.Access) error) error {
	client, err := c.newClient()
	if err != nil {
		return err
	}
	session, err := taskaccess.OpenWithFallback(cmd.Context(), client, func() (*tasks.Store, error) {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		return tasks.Open(cfg)
	})
	if err != nil {
		return wrapDaemonError(err, c.daemonURL())
	}
	defer session.Close()

	if session.Access.Mode() == taskaccess.ModeStore {
		fmt.Fprintln(cmd.ErrOrStderr(), "Daemon not reachable; using local task store")
	}
	return wrapDaemonError(fn(session.Access), c.daemonURL())
}

func wrapDaemonError(err error, url string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, api.ErrDaemonUnavailable):
		return fmt.Errorf("connect to daemon at %s: not reachable; start it with `casetrack daemon` or `casetrackd`", url)
	case api.StatusCode(err) == http.StatusUnauthorized:
		return fmt.Errorf("daemon rejected the request: check --token or paths.api_token")
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
