package notifications

import (
	"context"
	"log/slog"
	"time"

	"casetrack/internal/logging"
)

type logService struct {
	logger *slog.Logger
}

// NewLogService records every notification in the structured log.
func NewLogService(logger *slog.Logger) Service {
	return &logService{logger: logging.NewComponentLogger(logger, "notifications")}
}

func (l *logService) Publish(_ context.Context, event Event, payload Payload) error {
	n := render(event, payload, time.Now())
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, string(event)),
		logging.String("title", n.Title),
		logging.String("message", n.Message),
	}
	if n.TaskID != "" {
		attrs = append(attrs, logging.String(logging.FieldTaskID, n.TaskID))
	}
	if n.Category != "" {
		attrs = append(attrs, logging.String(logging.FieldCategory, n.Category))
	}
	switch n.Level {
	case LevelError:
		logging.WarnWithContext(l.logger, "notification raised", string(event), append(attrs,
			logging.String(logging.FieldImpact, "user was notified of a failed task"),
			logging.String(logging.FieldErrorHint, "inspect the task with casetrack tasks show"),
		)...)
	default:
		l.logger.Info("notification raised", logging.Args(attrs...)...)
	}
	return nil
}
