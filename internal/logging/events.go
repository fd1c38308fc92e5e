package logging

import (
	"fmt"
	"log/slog"
)

const defaultWarnImpact = "task tracking continues"

// WarnWithContext logs a warning tagged with eventType. Missing error_hint and
// impact fields are filled in so every warning tells the operator what broke
// and where to look next.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withEventFields(attrs, eventType)
	if attrValue(attrs, FieldImpact) == "" {
		attrs = append(attrs, String(FieldImpact, defaultWarnImpact))
	}
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs an error tagged with eventType and an error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, Args(withEventFields(attrs, eventType)...)...)
}

func withEventFields(attrs []Attr, eventType string) []Attr {
	if attrValue(attrs, FieldEventType) == "" {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	if attrValue(attrs, FieldErrorHint) == "" {
		attrs = append(attrs, String(FieldErrorHint, logsHint(attrValue(attrs, FieldTaskID))))
	}
	return attrs
}

// logsHint points at the CLI command that shows the surrounding log lines.
func logsHint(taskID string) string {
	if taskID == "" {
		return "run `casetrack logs --level warn` for context"
	}
	return fmt.Sprintf("run `casetrack logs --task %s` for context", taskID)
}

func attrValue(attrs []Attr, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value.String()
		}
	}
	return ""
}
