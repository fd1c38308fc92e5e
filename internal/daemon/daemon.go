package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"casetrack/internal/config"
	"casetrack/internal/logging"
	"casetrack/internal/notifications"
	"casetrack/internal/preflight"
	"casetrack/internal/submit"
	"casetrack/internal/tasks"
	"casetrack/internal/tracker"
)

// Dependencies are the collaborators the daemon coordinates.
type Dependencies struct {
	Store      *tasks.Store
	Tracker    *tracker.Tracker
	Dispatcher *notifications.Dispatcher
	Hub        *notifications.Hub
	Feed       *notifications.Feed
	Submit     *submit.Service
}

// Daemon coordinates background polling and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Dependencies

	lockPath string
	lock     *flock.Flock

	sessionID string
	startedAt time.Time
	api       *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	SessionID     string
	StartedAt     time.Time
	DatabasePath  string
	LockFilePath  string
	LogPath       string
	BackendURL    string
	ActivePollers int
	Counts        map[tasks.State]int
	Sinks         []string
	Checks        []preflight.Result
}

// New constructs a daemon and subscribes the dispatcher to the tracker.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Tracker == nil || deps.Submit == nil {
		return nil, errors.New("daemon requires config, store, tracker, and submit service")
	}
	if deps.Feed == nil {
		deps.Feed = notifications.NewFeed(cfg.Notifications.FeedSize)
	}
	if deps.Dispatcher != nil {
		deps.Tracker.Subscribe(deps.Dispatcher)
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		deps:      deps,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		sessionID: uuid.NewString(),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, hydrates the tracker, and starts the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another casetrack daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.deps.Tracker.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start tracker: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.deps.Tracker.Stop()
		d.abortStart()
		return err
	}

	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("casetrack daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("session_id", d.sessionID),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops polling, drains notifications, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.deps.Tracker.Stop()
	if d.deps.Dispatcher != nil {
		d.deps.Dispatcher.Close()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("casetrack daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.deps.Hub != nil {
		errs = append(errs, d.deps.Hub.Close())
	}
	errs = append(errs, d.deps.Store.Close())
	return errors.Join(errs...)
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Address returns the API listen address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status. Preflight checks are included
// when withChecks is set because they touch the network.
func (d *Daemon) Status(ctx context.Context, withChecks bool) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		SessionID:     d.sessionID,
		StartedAt:     d.startedAt,
		DatabasePath:  d.deps.Store.Path(),
		LockFilePath:  d.lockPath,
		LogPath:       d.cfg.LogPath(),
		BackendURL:    d.cfg.Backend.BaseURL,
		ActivePollers: d.deps.Tracker.ActivePollers(),
		Counts:        d.deps.Tracker.Stats(),
	}
	if d.deps.Hub != nil {
		status.Sinks = d.deps.Hub.Sinks()
	}
	if withChecks {
		status.Checks = preflight.RunAll(ctx, d.cfg)
	}
	return status
}

// TestNotification publishes a test notification through every sink.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.deps.Hub == nil {
		return false, "notifications not configured", nil
	}
	err := d.deps.Hub.Publish(ctx, notifications.EventTest, notifications.Payload{
		"message": "casetrack notification test",
	})
	if err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
