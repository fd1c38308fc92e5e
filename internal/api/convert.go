package api

import (
	"time"

	"casetrack/internal/preflight"
	"casetrack/internal/tasks"
)

// FromJob converts a tracked job to its API representation.
func FromJob(job *tasks.Job) Task {
	if job == nil {
		return Task{}
	}
	dto := Task{
		ID:           job.ID,
		State:        string(job.State),
		Progress:     job.Progress,
		StatusText:   job.StatusText,
		ErrorDetail:  job.ErrorDetail,
		PollFailures: job.PollFailures,
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
		RegisteredAt: formatTime(job.RegisteredAt),
		Context:      FromContext(job.Context),
	}
	if len(job.Result) > 0 {
		dto.Result = append([]byte(nil), job.Result...)
	}
	return dto
}

// FromJobs converts a slice of jobs into API DTOs.
func FromJobs(jobs []*tasks.Job) []Task {
	out := make([]Task, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromContext converts submission metadata.
func FromContext(ctx tasks.Context) TaskContext {
	return TaskContext{
		Category:    ctx.Category,
		Title:       ctx.Title,
		Description: ctx.Description,
		CaseID:      ctx.CaseID,
		Target:      ctx.Target,
	}
}

// ToContext converts a transport context back to the domain type.
func (c TaskContext) ToContext() tasks.Context {
	return tasks.Context{
		Category:    c.Category,
		Title:       c.Title,
		Description: c.Description,
		CaseID:      c.CaseID,
		Target:      c.Target,
	}
}

// GroupByState buckets tasks by state in display order. Every state is
// present, possibly with no items, and item order is preserved.
func GroupByState(items []Task) []StateGroup {
	states := tasks.AllStates()
	index := make(map[string]int, len(states))
	groups := make([]StateGroup, len(states))
	for i, state := range states {
		index[string(state)] = i
		groups[i] = StateGroup{State: string(state), Items: []Task{}}
	}
	for _, item := range items {
		i, ok := index[item.State]
		if !ok {
			continue
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

// MergeStats returns counts keyed by state name with every state present.
func MergeStats(stats map[tasks.State]int) map[string]int {
	out := make(map[string]int, len(tasks.AllStates()))
	for _, state := range tasks.AllStates() {
		out[string(state)] = stats[state]
	}
	return out
}

// NewTaskList builds a list response with groups and counts.
func NewTaskList(jobs []*tasks.Job, stats map[tasks.State]int) TaskListResponse {
	items := FromJobs(jobs)
	return TaskListResponse{
		Items:  items,
		Groups: GroupByState(items),
		Counts: MergeStats(stats),
	}
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// ParseTime parses an API timestamp, returning the zero time when empty or invalid.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
