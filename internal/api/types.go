package api

import (
	"encoding/json"

	"casetrack/internal/notifications"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a tracked job in a transport-friendly format.
type Task struct {
	ID           string          `json:"id"`
	State        string          `json:"state"`
	Progress     int             `json:"progress"`
	StatusText   string          `json:"statusText"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorDetail  string          `json:"errorDetail,omitempty"`
	PollFailures int             `json:"pollFailures"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
	RegisteredAt string          `json:"registeredAt,omitempty"`
	Context      TaskContext     `json:"context"`
}

// TaskContext mirrors tasks.Context.
type TaskContext struct {
	Category    string `json:"category,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	CaseID      string `json:"caseId,omitempty"`
	Target      string `json:"target,omitempty"`
}

// StateGroup is one section of a grouped task list.
type StateGroup struct {
	State string `json:"state"`
	Items []Task `json:"items"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Items  []Task         `json:"items"`
	Groups []StateGroup   `json:"groups"`
	Counts map[string]int `json:"counts"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// TrackRequest registers an existing backend task id.
type TrackRequest struct {
	ID      string      `json:"id"`
	Context TaskContext `json:"context"`
}

// TrackResponse reports the tracked task and whether it was new.
type TrackResponse struct {
	Task  Task `json:"task"`
	Added bool `json:"added"`
}

// SubmitRequest is the body of POST /api/submit/:category.
type SubmitRequest struct {
	CaseID      string   `json:"case_id"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// SubmitResponse lists the registered task ids.
type SubmitResponse struct {
	Category string   `json:"category"`
	TaskIDs  []string `json:"taskIds"`
}

// RemoveResponse reports whether a task was removed.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// ClearResponse reports how many tasks were cleared.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// NotificationsResponse returns feed entries newer than the requested cursor.
type NotificationsResponse struct {
	Items []notifications.Notification `json:"items"`
	Next  int64                        `json:"next"`
}

// TestNotificationResponse reports the outcome of a test notification.
type TestNotificationResponse struct {
	Sent    bool     `json:"sent"`
	Message string   `json:"message"`
	Sinks   []string `json:"sinks"`
	// Error mirrors Message on failure so clients decode it like ErrorResponse.
	Error string `json:"error,omitempty"`
}

// CheckResult mirrors preflight.Result.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	SessionID     string         `json:"sessionId"`
	StartedAt     string         `json:"startedAt,omitempty"`
	DatabasePath  string         `json:"databasePath"`
	LockFilePath  string         `json:"lockFilePath"`
	LogPath       string         `json:"logPath"`
	BackendURL    string         `json:"backendUrl"`
	ActivePollers int            `json:"activePollers"`
	Counts        map[string]int `json:"counts"`
	Sinks         []string       `json:"sinks"`
	Checks        []CheckResult  `json:"checks"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
