package tasks

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const jobColumns = "id, state, progress, status_text, result_json, error_detail, poll_failures, created_at, updated_at, registered_at, category, title, description, case_id, target"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            string
		state         string
		progress      int
		statusText    sql.NullString
		resultJSON    sql.NullString
		errorDetail   sql.NullString
		pollFailures  int
		createdRaw    string
		updatedRaw    string
		registeredRaw string
		category      sql.NullString
		title         sql.NullString
		description   sql.NullString
		caseID        sql.NullString
		target        sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&state,
		&progress,
		&statusText,
		&resultJSON,
		&errorDetail,
		&pollFailures,
		&createdRaw,
		&updatedRaw,
		&registeredRaw,
		&category,
		&title,
		&description,
		&caseID,
		&target,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		State:        State(state),
		Progress:     progress,
		StatusText:   statusText.String,
		ErrorDetail:  errorDetail.String,
		PollFailures: pollFailures,
		Context: Context{
			Category:    category.String,
			Title:       title.String,
			Description: description.String,
			CaseID:      caseID.String,
			Target:      target.String,
		},
	}
	if resultJSON.Valid && resultJSON.String != "" {
		job.Result = json.RawMessage(resultJSON.String)
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = t
	}
	if t, err := parseTimeString(registeredRaw); err == nil {
		job.RegisteredAt = t
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableJSON(value json.RawMessage) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func statePlaceholders(states []State) (string, []any) {
	args := make([]any, len(states))
	marks := make([]string, len(states))
	for i, state := range states {
		args[i] = string(state)
		marks[i] = "?"
	}
	return strings.Join(marks, ","), args
}
