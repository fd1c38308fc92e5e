package tasks

import (
	"encoding/json"
	"strings"
	"time"
)

// State is the local lifecycle state of a tracked job.
type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

var allStates = []State{StateQueued, StateActive, StateSucceeded, StateFailed, StateCancelled}

// AllStates returns every state in display order.
func AllStates() []State {
	return append([]State(nil), allStates...)
}

// ParseState normalizes a user supplied state name.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range allStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// IsTerminal reports whether the state is absorbing.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether a job in this state may be re-queued.
func (s State) IsRetryable() bool {
	return s == StateFailed || s == StateCancelled
}

// Context is immutable submission metadata attached to a job.
type Context struct {
	Category    string
	Title       string
	Description string
	CaseID      string
	// Target is the navigation target shown next to a finished job.
	Target string
}

// Job is one backend task tracked locally.
type Job struct {
	ID           string
	State        State
	Progress     int
	StatusText   string
	Result       json.RawMessage
	ErrorDetail  string
	PollFailures int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RegisteredAt time.Time
	Context      Context
}

// NewJob builds a queued job registered at now.
func NewJob(id string, ctx Context, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:           id,
		State:        StateQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
		RegisteredAt: now,
		Context:      ctx,
	}
}

// Clone returns a deep copy safe to hand outside a lock.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Result != nil {
		cp.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &cp
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	State        *State
	Progress     *int
	StatusText   *string
	Result       json.RawMessage
	ErrorDetail  *string
	PollFailures *int
	UpdatedAt    *time.Time
}

// Apply merges the patch into job. UpdatedAt is refreshed to now unless the
// patch supplies one.
func (p Patch) Apply(job *Job, now time.Time) {
	if p.State != nil {
		job.State = *p.State
	}
	if p.Progress != nil {
		job.Progress = ClampProgress(*p.Progress)
	}
	if p.StatusText != nil {
		job.StatusText = *p.StatusText
	}
	if p.Result != nil {
		job.Result = append(json.RawMessage(nil), p.Result...)
	}
	if p.ErrorDetail != nil {
		job.ErrorDetail = *p.ErrorDetail
	}
	if p.PollFailures != nil {
		job.PollFailures = *p.PollFailures
	}
	if p.UpdatedAt != nil {
		job.UpdatedAt = p.UpdatedAt.UTC()
	} else {
		job.UpdatedAt = now.UTC()
	}
}

// ClampProgress bounds a percentage to [0,100].
func ClampProgress(value int) int {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}

// ResetForRetry returns a failed or cancelled job to queued with a fresh
// timeout window.
func (j *Job) ResetForRetry(now time.Time) error {
	if !j.State.IsRetryable() {
		return ErrNotRetryable
	}
	now = now.UTC()
	j.State = StateQueued
	j.Progress = 0
	j.StatusText = ""
	j.Result = nil
	j.ErrorDetail = ""
	j.PollFailures = 0
	j.RegisteredAt = now
	j.UpdatedAt = now
	return nil
}
