package api_test

import (
	"context"
	"errors"
	"testing"

	"casetrack/internal/api"
	"casetrack/internal/tasks"
	"casetrack/internal/testsupport"
)

func TestTaskServiceAgainstStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.InsertJob(t, store, "q", tasks.StateQueued)
	testsupport.InsertJob(t, store, "f", tasks.StateFailed)
	testsupport.InsertJob(t, store, "s", tasks.StateSucceeded)

	svc := api.NewTaskService(store)
	ctx := context.Background()

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Items) != 3 || list.Counts["failed"] != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	retried, err := svc.Retry(ctx, "f")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.State != "queued" {
		t.Fatalf("expected queued after retry, got %s", retried.State)
	}
	if _, err := svc.Retry(ctx, "q"); !errors.Is(err, tasks.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}

	removed, err := svc.Clear(ctx, true)
	if err != nil || removed != 1 {
		t.Fatalf("Clear completed: removed=%d err=%v", removed, err)
	}
	if _, err := svc.Describe(ctx, "s"); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ok, err := svc.Remove(ctx, "q")
	if err != nil || !ok {
		t.Fatalf("Remove: ok=%v err=%v", ok, err)
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["queued"] != 1 {
		t.Fatalf("expected the retried job to remain queued, got %v", stats)
	}
}
