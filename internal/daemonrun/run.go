package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"casetrack/internal/backend"
	"casetrack/internal/config"
	"casetrack/internal/daemon"
	"casetrack/internal/logging"
	"casetrack/internal/notifications"
	"casetrack/internal/preflight"
	"casetrack/internal/submit"
	"casetrack/internal/tasks"
	"casetrack/internal/tracker"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the casetrack daemon and blocks until the context is cancelled
// or the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    cfg.LogPath(),
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logPreflight(signalCtx, logger, cfg)

	store, err := tasks.Open(cfg)
	if err != nil {
		logger.Error("open task store", logging.Error(err))
		return err
	}

	client := backend.New(cfg, backend.WithLogger(logger))
	tr, err := tracker.New(tracker.SettingsFromConfig(cfg), store, client, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create tracker: %w", err)
	}
	feed := notifications.NewFeed(cfg.Notifications.FeedSize)
	hub := notifications.NewService(signalCtx, cfg, logger, feed)
	dispatcher := notifications.NewDispatcher(hub, cfg.NotificationRetention(), logger)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:      store,
		Tracker:    tr,
		Dispatcher: dispatcher,
		Hub:        hub,
		Feed:       feed,
		Submit:     submit.New(client, tr, dispatcher, logger),
	}, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another casetrackd and the api bind address"),
			logging.String(logging.FieldImpact, "tasks will not be polled"),
		)
		return err
	}

	// The pid file is only written once the lock is held.
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("write pid file", logging.Error(err))
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("casetrack daemon shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "polling or notifications may fail until this is fixed"),
			logging.String(logging.FieldErrorHint, "run casetrack status for details"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
