package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Event identifies the notification type.
type Event string

const (
	EventTaskStarted      Event = "task_started"
	EventTaskCompleted    Event = "task_completed"
	EventTaskFailed       Event = "task_failed"
	EventTaskCancelled    Event = "task_cancelled"
	EventSubmissionFailed Event = "submission_failed"
	EventTest             Event = "test"
)

// Level is the toast flavour shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Payload carries event-specific data. Recognized keys: taskID, title,
// message, error, category, caseID, target.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Notification is the rendered form every sink delivers.
type Notification struct {
	Seq       int64     `json:"seq,omitempty"`
	Event     Event     `json:"event"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TaskID    string    `json:"task_id,omitempty"`
	Category  string    `json:"category,omitempty"`
	CaseID    string    `json:"case_id,omitempty"`
	Target    string    `json:"target,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var titleCaser = cases.Title(language.Und)

// CategoryLabel renders a category key such as "card_casting" for display.
func CategoryLabel(category string) string {
	category = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(category))
	if category == "" {
		return "Task"
	}
	return titleCaser.String(category)
}

func render(event Event, payload Payload, now time.Time) Notification {
	subject := payloadString(payload, "title")
	category := payloadString(payload, "category")
	if subject == "" {
		subject = CategoryLabel(category)
	}
	message := payloadString(payload, "message")
	errText := payloadString(payload, "error")

	n := Notification{
		Event:     event,
		TaskID:    payloadString(payload, "taskID"),
		Category:  category,
		CaseID:    payloadString(payload, "caseID"),
		Target:    payloadString(payload, "target"),
		CreatedAt: now.UTC(),
	}

	switch event {
	case EventTaskStarted:
		n.Level = LevelInfo
		n.Title = subject + " started"
		n.Message = firstNonEmpty(message, subject+" is running")
		n.Tags = []string{"casetrack", "task", "started"}
	case EventTaskCompleted:
		n.Level = LevelSuccess
		n.Title = subject + " completed"
		n.Message = firstNonEmpty(message, subject+" finished successfully")
		n.Tags = []string{"casetrack", "task", "completed"}
	case EventTaskFailed:
		n.Level = LevelError
		n.Title = subject + " failed"
		n.Message = firstNonEmpty(errText, message, "Task failed")
		n.Tags = []string{"casetrack", "task", "error"}
		n.Priority = "high"
	case EventTaskCancelled:
		n.Level = LevelWarning
		n.Title = subject + " cancelled"
		n.Message = firstNonEmpty(message, subject+" was cancelled")
		n.Tags = []string{"casetrack", "task", "cancelled"}
	case EventSubmissionFailed:
		n.Level = LevelError
		n.Title = subject + " could not be submitted"
		n.Message = firstNonEmpty(errText, message, "Submission failed")
		n.Tags = []string{"casetrack", "submission", "error"}
		n.Priority = "high"
	case EventTest:
		n.Level = LevelInfo
		n.Title = "casetrack test"
		n.Message = firstNonEmpty(message, "Notification system test")
		n.Tags = []string{"casetrack", "test"}
		n.Priority = "low"
	default:
		n.Level = LevelInfo
		n.Title = firstNonEmpty(subject, string(event))
		n.Message = firstNonEmpty(message, errText)
		n.Tags = []string{"casetrack", string(event)}
	}
	return n
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// NewNoop returns a Service that discards everything.
func NewNoop() Service { return noopService{} }
