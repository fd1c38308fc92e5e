package testsupport

import (
	"context"
	"testing"
	"time"

	"casetrack/internal/config"
	"casetrack/internal/tasks"
)

// MustOpenStore opens a tasks.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *tasks.Store {
	t.Helper()

	store, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// InsertJob writes a job with the given state directly to the store.
func InsertJob(t testing.TB, store *tasks.Store, id string, state tasks.State) *tasks.Job {
	t.Helper()

	job := tasks.NewJob(id, tasks.Context{Category: "evidence_analysis", Title: "Evidence analysis", CaseID: "42"}, time.Now())
	job.State = state
	if state == tasks.StateSucceeded {
		job.Progress = 100
	}
	if _, err := store.Insert(context.Background(), job); err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return job
}
