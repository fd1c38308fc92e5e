package tasks_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"casetrack/internal/tasks"
	"casetrack/internal/testsupport"
)

func TestInsertIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := tasks.NewJob("t-1", tasks.Context{Category: "card_casting", CaseID: "7", Target: "/cases/7/cards"}, time.Now())
	inserted, err := store.Insert(ctx, job)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	dup := tasks.NewJob("t-1", tasks.Context{Category: "other"}, time.Now())
	inserted, err = store.Insert(ctx, dup)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate insert to be ignored")
	}

	fetched, err := store.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Context.Category != "card_casting" || fetched.Context.Target != "/cases/7/cards" {
		t.Fatalf("context overwritten: %#v", fetched.Context)
	}
	if fetched.State != tasks.StateQueued {
		t.Fatalf("expected queued, got %s", fetched.State)
	}
}

func TestSaveRoundTripsMutableFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.InsertJob(t, store, "t-2", tasks.StateActive)
	job.State = tasks.StateSucceeded
	job.Progress = 100
	job.StatusText = "Done"
	job.Result = json.RawMessage(`{"cards":3}`)
	job.PollFailures = 2
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fetched, err := store.Get(ctx, "t-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.State != tasks.StateSucceeded || fetched.Progress != 100 || fetched.StatusText != "Done" {
		t.Fatalf("unexpected job: %#v", fetched)
	}
	if string(fetched.Result) != `{"cards":3}` {
		t.Fatalf("unexpected result: %s", fetched.Result)
	}
	if fetched.PollFailures != 2 {
		t.Fatalf("expected poll failures persisted, got %d", fetched.PollFailures)
	}
	if !fetched.RegisteredAt.Equal(job.RegisteredAt) {
		t.Fatalf("registered_at drifted: %s vs %s", fetched.RegisteredAt, job.RegisteredAt)
	}
}

func TestGetAndSaveMissingReturnNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Save(ctx, tasks.NewJob("missing", tasks.Context{}, time.Now())); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Save, got %v", err)
	}
}

func TestListFiltersByState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.InsertJob(t, store, "a", tasks.StateQueued)
	testsupport.InsertJob(t, store, "b", tasks.StateActive)
	testsupport.InsertJob(t, store, "c", tasks.StateFailed)

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}

	pending, err := store.List(ctx, tasks.StateQueued, tasks.StateActive)
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", len(pending))
	}
}

func TestClearCompletedKeepsPendingJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.InsertJob(t, store, "q", tasks.StateQueued)
	testsupport.InsertJob(t, store, "a", tasks.StateActive)
	testsupport.InsertJob(t, store, "s", tasks.StateSucceeded)
	testsupport.InsertJob(t, store, "f", tasks.StateFailed)
	testsupport.InsertJob(t, store, "c", tasks.StateCancelled)

	removed, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[tasks.StateQueued] != 1 || stats[tasks.StateActive] != 1 || stats[tasks.StateSucceeded] != 0 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	removed, err = store.Clear(ctx)
	if err != nil || removed != 2 {
		t.Fatalf("Clear: removed=%d err=%v", removed, err)
	}
}

func TestRemoveReportsExistence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.InsertJob(t, store, "x", tasks.StateQueued)
	ok, err := store.Remove(ctx, "x")
	if err != nil || !ok {
		t.Fatalf("Remove existing: ok=%v err=%v", ok, err)
	}
	ok, err = store.Remove(ctx, "x")
	if err != nil || ok {
		t.Fatalf("Remove missing: ok=%v err=%v", ok, err)
	}
}

func TestRetryOnlyForFailedOrCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failed := testsupport.InsertJob(t, store, "f", tasks.StateFailed)
	failed.ErrorDetail = "bad file"
	failed.PollFailures = 3
	failed.Progress = 40
	if err := store.Save(ctx, failed); err != nil {
		t.Fatalf("Save: %v", err)
	}
	testsupport.InsertJob(t, store, "a", tasks.StateActive)

	later := time.Now().Add(time.Hour)
	retried, err := store.Retry(ctx, "f", later)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.State != tasks.StateQueued || retried.Progress != 0 || retried.ErrorDetail != "" || retried.PollFailures != 0 {
		t.Fatalf("unexpected retried job: %#v", retried)
	}
	if !retried.RegisteredAt.Equal(later.UTC()) {
		t.Fatalf("expected registered_at reset, got %s", retried.RegisteredAt)
	}

	if _, err := store.Retry(ctx, "a", later); !errors.Is(err, tasks.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	store.Close()

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := tasks.Open(cfg); !errors.Is(err, tasks.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestPatchApplyClampsAndBumpsUpdatedAt(t *testing.T) {
	job := tasks.NewJob("p", tasks.Context{}, time.Unix(0, 0))
	progress := 150
	state := tasks.StateActive
	now := time.Unix(100, 0)
	tasks.Patch{State: &state, Progress: &progress}.Apply(job, now)
	if job.Progress != 100 {
		t.Fatalf("expected clamp to 100, got %d", job.Progress)
	}
	if !job.UpdatedAt.Equal(now.UTC()) {
		t.Fatalf("expected updated_at bumped, got %s", job.UpdatedAt)
	}

	supplied := time.Unix(50, 0)
	tasks.Patch{UpdatedAt: &supplied}.Apply(job, now)
	if !job.UpdatedAt.Equal(supplied.UTC()) {
		t.Fatalf("expected supplied updated_at, got %s", job.UpdatedAt)
	}
}

func TestOpenUsesConfiguredDatabasePath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if store.Path() != cfg.DatabasePath() {
		t.Fatalf("store path %q, want %q", store.Path(), cfg.DatabasePath())
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestWriteWaitsForConcurrentWriter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open side db: %v", err)
	}
	defer db.Close()
	conn, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("side conn: %v", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		t.Fatalf("hold write lock: %v", err)
	}
	released := make(chan error, 1)
	go func() {
		time.Sleep(150 * time.Millisecond)
		_, err := conn.ExecContext(ctx, "COMMIT")
		released <- err
	}()

	inserted, err := store.Insert(ctx, tasks.NewJob("t-lock", tasks.Context{}, time.Now()))
	if err != nil || !inserted {
		t.Fatalf("insert during lock: inserted=%v err=%v", inserted, err)
	}
	if err := <-released; err != nil {
		t.Fatalf("release lock: %v", err)
	}
}
