package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Remote Celery-style statuses.
const (
	StatusPending  = "PENDING"
	StatusStarted  = "STARTED"
	StatusRetry    = "RETRY"
	StatusProgress = "PROGRESS"
	StatusSuccess  = "SUCCESS"
	StatusFailure  = "FAILURE"
	StatusRevoked  = "REVOKED"
)

// TaskStatus is the decoded status endpoint payload.
type TaskStatus struct {
	Status string          `json:"status"`
	Info   *StatusInfo     `json:"info,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  Text            `json:"error,omitempty"`
}

// StatusInfo carries progress detail. Celery reports failures with a bare
// string instead of an object; that string lands in Message.
type StatusInfo struct {
	Status     string   `json:"status,omitempty"`
	Message    Text     `json:"message,omitempty"`
	Progress   *float64 `json:"progress,omitempty"`
	Current    *float64 `json:"current,omitempty"`
	Total      *float64 `json:"total,omitempty"`
	Error      Text     `json:"error,omitempty"`
	ExcMessage Text     `json:"exc_message,omitempty"`
}

// UnmarshalJSON accepts either an object or a scalar.
func (i *StatusInfo) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		var text Text
		if err := text.UnmarshalJSON(trimmed); err != nil {
			return err
		}
		*i = StatusInfo{Message: text}
		return nil
	}
	type plain StatusInfo
	var decoded struct {
		plain
		Progress json.RawMessage `json:"progress,omitempty"`
		Current  json.RawMessage `json:"current,omitempty"`
		Total    json.RawMessage `json:"total,omitempty"`
	}
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*i = StatusInfo(decoded.plain)
	i.Progress = parseNumber(decoded.Progress)
	i.Current = parseNumber(decoded.Current)
	i.Total = parseNumber(decoded.Total)
	return nil
}

// parseNumber accepts JSON numbers and numeric strings; anything else is absent.
func parseNumber(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err == nil {
		return &value
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			return &parsed
		}
	}
	return nil
}

// Text decodes any JSON scalar, array, or object into a display string.
// Celery exception payloads are not always strings.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	if trimmed[0] == '[' {
		var parts []any
		if err := json.Unmarshal(trimmed, &parts); err == nil {
			values := make([]string, 0, len(parts))
			for _, part := range parts {
				values = append(values, fmt.Sprint(part))
			}
			*t = Text(strings.Join(values, "; "))
			return nil
		}
	}
	*t = Text(trimmed)
	return nil
}

// String returns the trimmed text.
func (t Text) String() string {
	return strings.TrimSpace(string(t))
}
