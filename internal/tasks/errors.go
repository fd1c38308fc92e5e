package tasks

import "errors"

var (
	// ErrNotFound indicates the job id is not tracked.
	ErrNotFound = errors.New("task not found")
	// ErrNotRetryable indicates a retry was requested for a job that is not failed or cancelled.
	ErrNotRetryable = errors.New("task is not retryable")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
