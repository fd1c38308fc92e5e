package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"casetrack/internal/config"
	"casetrack/internal/logging"
)

type sink struct {
	name    string
	service Service
}

// Hub fans a notification out to every configured sink and applies the
// per-event toggles from configuration.
type Hub struct {
	sinks   []sink
	allow   map[Event]bool
	closers []func() error
	logger  *slog.Logger
}

// NewHub returns an empty hub with every event enabled.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{allow: map[Event]bool{}, logger: logging.NewComponentLogger(logger, "notifications")}
}

// NewService wires the sinks named in configuration. The feed and the log
// sink are always present; ntfy and Redis are added when configured. A Redis
// server that cannot be reached is logged and skipped.
func NewService(ctx context.Context, cfg *config.Config, logger *slog.Logger, feed *Feed) *Hub {
	h := NewHub(logger)
	h.allow = map[Event]bool{
		EventTaskStarted:      cfg.Notifications.Started,
		EventTaskCompleted:    cfg.Notifications.Completed,
		EventTaskFailed:       cfg.Notifications.Failed,
		EventTaskCancelled:    cfg.Notifications.Cancelled,
		EventSubmissionFailed: cfg.Notifications.Submissions,
	}
	if feed != nil {
		h.Add("feed", feed)
	}
	h.Add("log", NewLogService(logger))

	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		h.Add("ntfy", NewNtfyService(topic, cfg.NotificationTimeout()))
	}
	if addr := strings.TrimSpace(cfg.Notifications.RedisAddress); addr != "" {
		redisSvc, err := NewRedisService(ctx, addr, cfg.Notifications.RedisPassword, cfg.Notifications.RedisDB, cfg.Notifications.RedisChannel)
		if err != nil {
			logging.WarnWithContext(h.logger, "redis notifications disabled", "redis_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "notifications will not be mirrored to redis"),
				logging.String(logging.FieldErrorHint, "check notifications.redis_address and that redis is running"),
			)
		} else {
			h.Add("redis", redisSvc)
			h.closers = append(h.closers, redisSvc.Close)
		}
	}
	return h
}

// Add appends a named sink.
func (h *Hub) Add(name string, svc Service) {
	if svc == nil {
		return
	}
	h.sinks = append(h.sinks, sink{name: name, service: svc})
}

// Sinks lists the active sink names.
func (h *Hub) Sinks() []string {
	names := make([]string, 0, len(h.sinks))
	for _, s := range h.sinks {
		names = append(names, s.name)
	}
	return names
}

// Enabled reports whether the event passes the configured toggles. Events
// without a toggle are always enabled.
func (h *Hub) Enabled(event Event) bool {
	allowed, ok := h.allow[event]
	return !ok || allowed
}

// Publish delivers to every sink and joins their errors.
func (h *Hub) Publish(ctx context.Context, event Event, payload Payload) error {
	if !h.Enabled(event) {
		return nil
	}
	var errs []error
	for _, s := range h.sinks {
		if err := s.service.Publish(ctx, event, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases sink connections.
func (h *Hub) Close() error {
	var errs []error
	for _, closer := range h.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
