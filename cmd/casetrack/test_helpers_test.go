package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"casetrack/internal/backend"
	"casetrack/internal/config"
	"casetrack/internal/daemon"
	"casetrack/internal/logging"
	"casetrack/internal/notifications"
	"casetrack/internal/submit"
	"casetrack/internal/testsupport"
	"casetrack/internal/tracker"
)

type cliTestEnv struct {
	cfg        *config.Config
	backend    *testsupport.Backend
	daemon     *daemon.Daemon
	daemonURL  string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	fake := testsupport.NewBackend(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(fake.URL()))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "casetrack", "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		backend:    fake,
		daemonURL:  "http://127.0.0.1:1",
		configPath: configPath,
	}
}

// startDaemon runs a daemon against the env config and points the CLI at it.
func (env *cliTestEnv) startDaemon(t *testing.T) {
	t.Helper()

	logger := logging.NewNop()
	store := testsupport.MustOpenStore(t, env.cfg)
	client := backend.New(env.cfg)
	tr, err := tracker.New(tracker.SettingsFromConfig(env.cfg), store, client, logger)
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	feed := notifications.NewFeed(env.cfg.Notifications.FeedSize)
	hub := notifications.NewService(context.Background(), env.cfg, logger, feed)
	dispatcher := notifications.NewDispatcher(hub, env.cfg.NotificationRetention(), logger)

	d, err := daemon.New(env.cfg, daemon.Dependencies{
		Store:      store,
		Tracker:    tr,
		Dispatcher: dispatcher,
		Hub:        hub,
		Feed:       feed,
		Submit:     submit.New(client, tr, dispatcher, logger),
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		_ = d.Close()
	})

	env.daemon = d
	env.daemonURL = "http://" + d.Address()
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, env.daemonURL, env.configPath)
}

func runCLI(t *testing.T, args []string, daemonURL, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--daemon-url", daemonURL}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[backend]\nbase_url = %q\n\n[tracker]\npoll_interval_ms = %d\n\n[notifications]\nretention_seconds = 0\n",
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Backend.BaseURL,
		cfg.Tracker.PollIntervalMillis,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
