package api

import (
	"context"
	"time"

	"casetrack/internal/tasks"
)

// TaskStore abstracts the persistence operations the CLI needs when the
// daemon is not running.
type TaskStore interface {
	List(ctx context.Context, states ...tasks.State) ([]*tasks.Job, error)
	Get(ctx context.Context, id string) (*tasks.Job, error)
	Stats(ctx context.Context) (map[tasks.State]int, error)
	Remove(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	Retry(ctx context.Context, id string, now time.Time) (*tasks.Job, error)
}

// TaskService exposes store-backed task operations returning API DTOs. The
// daemon reconciles any changes made this way when it next starts.
type TaskService struct {
	store TaskStore
	now   func() time.Time
}

// NewTaskService constructs a TaskService around the provided store.
func NewTaskService(store TaskStore) *TaskService {
	if store == nil {
		return nil
	}
	return &TaskService{store: store, now: time.Now}
}

// List returns tasks filtered by state, grouped and counted.
func (s *TaskService) List(ctx context.Context, states ...tasks.State) (TaskListResponse, error) {
	jobs, err := s.store.List(ctx, states...)
	if err != nil {
		return TaskListResponse{}, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return TaskListResponse{}, err
	}
	return NewTaskList(jobs, stats), nil
}

// Stats returns counts keyed by state name.
func (s *TaskService) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeStats(stats), nil
}

// Describe fetches a single task.
func (s *TaskService) Describe(ctx context.Context, id string) (Task, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	return FromJob(job), nil
}

// Remove deletes a task.
func (s *TaskService) Remove(ctx context.Context, id string) (bool, error) {
	return s.store.Remove(ctx, id)
}

// Clear deletes every task, or only terminal ones when completedOnly is set.
func (s *TaskService) Clear(ctx context.Context, completedOnly bool) (int, error) {
	var (
		n   int64
		err error
	)
	if completedOnly {
		n, err = s.store.ClearCompleted(ctx)
	} else {
		n, err = s.store.Clear(ctx)
	}
	return int(n), err
}

// Retry re-queues a failed or cancelled task.
func (s *TaskService) Retry(ctx context.Context, id string) (Task, error) {
	job, err := s.store.Retry(ctx, id, s.now())
	if err != nil {
		return Task{}, err
	}
	return FromJob(job), nil
}
