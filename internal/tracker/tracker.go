package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"casetrack/internal/backend"
	"casetrack/internal/config"
	"casetrack/internal/logging"
	"casetrack/internal/tasks"
)

// StatusFetcher retrieves the remote status of a task.
type StatusFetcher interface {
	Status(ctx context.Context, taskID string) (*backend.TaskStatus, error)
}

// ChangeKind describes what happened to a job.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// Change is delivered to observers after the mutation has been persisted.
// Previous is nil for additions; Current is nil for removals.
type Change struct {
	Kind     ChangeKind
	Previous *tasks.Job
	Current  *tasks.Job
}

// Observer receives tracker events. Calls are serialized in mutation order
// and happen outside the tracker lock.
type Observer interface {
	Hydrated(jobs []*tasks.Job)
	JobChanged(change Change)
}

// Settings controls polling behaviour.
type Settings struct {
	PollInterval    time.Duration
	Timeout         time.Duration
	MaxPollFailures int
	PollWorkers     int
	InferProgress   bool
}

// SettingsFromConfig derives tracker settings from configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		PollInterval:    cfg.PollInterval(),
		Timeout:         cfg.TaskTimeout(),
		MaxPollFailures: cfg.Tracker.MaxPollFailures,
		PollWorkers:     cfg.Tracker.PollWorkers,
		InferProgress:   cfg.Tracker.InferProgress,
	}
}

// Tracker is the in-memory authoritative view of tracked jobs.
type Tracker struct {
	settings Settings
	store    *tasks.Store
	fetcher  StatusFetcher
	pool     *ants.Pool
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	jobs    map[string]*tasks.Job
	pollers map[string]*poller
	started bool
	stopped bool

	notifyMu  sync.Mutex
	observers []Observer

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New constructs a tracker. Call Start to hydrate persisted jobs.
func New(settings Settings, store *tasks.Store, fetcher StatusFetcher, logger *slog.Logger) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("tracker: store is required")
	}
	if fetcher == nil {
		return nil, errors.New("tracker: status fetcher is required")
	}
	if settings.PollInterval <= 0 || settings.Timeout <= 0 || settings.MaxPollFailures <= 0 {
		return nil, fmt.Errorf("tracker: invalid settings %+v", settings)
	}
	workers := settings.PollWorkers
	if workers <= 0 {
		workers = 1
	}

	t := &Tracker{
		settings: settings,
		store:    store,
		fetcher:  fetcher,
		logger:   logging.NewComponentLogger(logger, "tracker"),
		now:      time.Now,
		jobs:     make(map[string]*tasks.Job),
		pollers:  make(map[string]*poller),
	}
	pool, err := ants.NewPool(workers, ants.WithOptions(ants.Options{
		ExpiryDuration: 30 * time.Second,
		PanicHandler: func(p any) {
			logging.ErrorWithContext(t.logger, "status fetch panicked", "poll_panic",
				logging.Any("panic", p),
				logging.String(logging.FieldErrorHint, "report this backend payload"),
			)
		},
	}))
	if err != nil {
		return nil, fmt.Errorf("tracker: create fetch pool: %w", err)
	}
	t.pool = pool
	t.baseCtx, t.baseCancel = context.WithCancel(context.Background())
	return t, nil
}

// Subscribe registers an observer. Observers added after Start miss the
// hydration event.
func (t *Tracker) Subscribe(observer Observer) {
	if observer == nil {
		return
	}
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	t.observers = append(t.observers, observer)
}

// Start loads persisted jobs, hands them to observers, and resumes polling for
// every queued or active job. Terminal jobs are left alone.
func (t *Tracker) Start(ctx context.Context) error {
	jobs, err := t.store.List(ctx)
	if err != nil {
		return fmt.Errorf("hydrate tracker: %w", err)
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("tracker already started")
	}
	t.started = true
	for _, job := range jobs {
		t.jobs[job.ID] = job
	}
	snapshot := cloneJobs(jobs)
	t.notifyMu.Lock()
	t.mu.Unlock()
	for _, observer := range t.observers {
		observer.Hydrated(snapshot)
	}
	t.notifyMu.Unlock()

	t.mu.Lock()
	resumed := 0
	for _, job := range jobs {
		if !job.State.IsTerminal() {
			t.startPollerLocked(job)
			resumed++
		}
	}
	t.mu.Unlock()

	t.logger.Info("tracker hydrated",
		logging.Int("jobs", len(jobs)),
		logging.Int("resumed_pollers", resumed),
	)
	return nil
}

// Stop cancels every poller and waits for them to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	for id, p := range t.pollers {
		p.cancel()
		delete(t.pollers, id)
	}
	t.mu.Unlock()

	t.baseCancel()
	t.wg.Wait()
	t.pool.Release()
}

// Add registers a new queued job and starts polling it. Adding an id that is
// already tracked returns the existing job and false.
func (t *Tracker) Add(ctx context.Context, id string, jobCtx tasks.Context) (*tasks.Job, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, errors.New("task id is required")
	}

	t.mu.Lock()
	if existing, ok := t.jobs[id]; ok {
		t.mu.Unlock()
		return existing.Clone(), false, nil
	}
	if t.stopped {
		t.mu.Unlock()
		return nil, false, errors.New("tracker is stopped")
	}

	job := tasks.NewJob(id, jobCtx, t.now())
	inserted, err := t.store.Insert(ctx, job)
	if err != nil {
		t.mu.Unlock()
		return nil, false, err
	}
	if !inserted {
		// Row written by another process (CLI fallback); adopt it.
		stored, err := t.store.Get(ctx, id)
		if err != nil {
			t.mu.Unlock()
			return nil, false, err
		}
		job = stored
	}
	t.jobs[id] = job
	if !job.State.IsTerminal() {
		t.startPollerLocked(job)
	}
	t.emitLocked(Change{Kind: ChangeAdded, Current: job.Clone()})

	t.logger.Info("task tracked",
		logging.String(logging.FieldTaskID, id),
		logging.String(logging.FieldCategory, jobCtx.Category),
		logging.String(logging.FieldCaseID, jobCtx.CaseID),
	)
	return job.Clone(), inserted, nil
}

// Update merges patch into the job, persists it, and cancels polling when the
// new state is terminal.
func (t *Tracker) Update(ctx context.Context, id string, patch tasks.Patch) (*tasks.Job, error) {
	t.mu.Lock()
	next, err := t.updateLocked(ctx, id, patch)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	return next, nil
}

// updateLocked must be called with t.mu held. On success it releases t.mu
// after emitting the change.
func (t *Tracker) updateLocked(ctx context.Context, id string, patch tasks.Patch) (*tasks.Job, error) {
	current, ok := t.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tasks.ErrNotFound, id)
	}
	next := current.Clone()
	patch.Apply(next, t.now())
	if err := t.store.Save(ctx, next); err != nil {
		return nil, err
	}
	t.jobs[id] = next
	if next.State.IsTerminal() {
		t.stopPollerLocked(id)
	}
	if current.State != next.State {
		t.logger.Info("task state changed",
			logging.String(logging.FieldTaskID, id),
			logging.String("from", string(current.State)),
			logging.String(logging.FieldTaskState, string(next.State)),
			logging.Int("progress", next.Progress),
		)
	}
	t.emitLocked(Change{Kind: ChangeUpdated, Previous: current.Clone(), Current: next.Clone()})
	return next.Clone(), nil
}

// Remove deletes a job and cancels its poller.
func (t *Tracker) Remove(ctx context.Context, id string) (bool, error) {
	t.mu.Lock()
	current, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return false, nil
	}
	if _, err := t.store.Remove(ctx, id); err != nil {
		t.mu.Unlock()
		return false, err
	}
	t.stopPollerLocked(id)
	delete(t.jobs, id)
	t.emitLocked(Change{Kind: ChangeRemoved, Previous: current.Clone()})
	t.logger.Info("task removed", logging.String(logging.FieldTaskID, id))
	return true, nil
}

// ClearAll removes every job.
func (t *Tracker) ClearAll(ctx context.Context) (int, error) {
	return t.clear(ctx, func(*tasks.Job) bool { return true }, t.store.Clear)
}

// ClearCompleted removes terminal jobs, keeping queued and active ones.
func (t *Tracker) ClearCompleted(ctx context.Context) (int, error) {
	return t.clear(ctx, func(job *tasks.Job) bool { return job.State.IsTerminal() }, t.store.ClearCompleted)
}

func (t *Tracker) clear(ctx context.Context, match func(*tasks.Job) bool, persist func(context.Context) (int64, error)) (int, error) {
	t.mu.Lock()
	if _, err := persist(ctx); err != nil {
		t.mu.Unlock()
		return 0, err
	}
	var removed []*tasks.Job
	for id, job := range t.jobs {
		if !match(job) {
			continue
		}
		t.stopPollerLocked(id)
		delete(t.jobs, id)
		removed = append(removed, job)
	}
	sortJobs(removed)
	changes := make([]Change, 0, len(removed))
	for _, job := range removed {
		changes = append(changes, Change{Kind: ChangeRemoved, Previous: job.Clone()})
	}
	t.emitLocked(changes...)
	t.logger.Info("tasks cleared", logging.Int("removed", len(removed)))
	return len(removed), nil
}

// Retry re-queues a failed or cancelled job with a fresh timeout window and
// restarts polling of the same backend id.
func (t *Tracker) Retry(ctx context.Context, id string) (*tasks.Job, error) {
	t.mu.Lock()
	current, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", tasks.ErrNotFound, id)
	}
	next := current.Clone()
	if err := next.ResetForRetry(t.now()); err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", err, id, current.State)
	}
	if err := t.store.Save(ctx, next); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.jobs[id] = next
	t.startPollerLocked(next)
	t.emitLocked(Change{Kind: ChangeUpdated, Previous: current.Clone(), Current: next.Clone()})
	t.logger.Info("task retried", logging.String(logging.FieldTaskID, id))
	return next.Clone(), nil
}

// Get returns a copy of a tracked job.
func (t *Tracker) Get(id string) (*tasks.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tasks.ErrNotFound, id)
	}
	return job.Clone(), nil
}

// List returns copies of tracked jobs ordered by creation time, optionally
// filtered by state.
func (t *Tracker) List(states ...tasks.State) []*tasks.Job {
	filter := make(map[tasks.State]struct{}, len(states))
	for _, state := range states {
		filter[state] = struct{}{}
	}
	t.mu.Lock()
	out := make([]*tasks.Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		if len(filter) > 0 {
			if _, ok := filter[job.State]; !ok {
				continue
			}
		}
		out = append(out, job.Clone())
	}
	t.mu.Unlock()
	sortJobs(out)
	return out
}

// Stats returns job counts keyed by state.
func (t *Tracker) Stats() map[tasks.State]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := make(map[tasks.State]int, len(tasks.AllStates()))
	for _, job := range t.jobs {
		stats[job.State]++
	}
	return stats
}

// ActivePollers reports how many pollers are running.
func (t *Tracker) ActivePollers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pollers)
}

// emitLocked hands changes to observers in order. It is entered with t.mu
// held and returns with t.mu released; notifyMu is taken before the release
// so concurrent mutations cannot reorder their notifications.
func (t *Tracker) emitLocked(changes ...Change) {
	t.notifyMu.Lock()
	t.mu.Unlock()
	defer t.notifyMu.Unlock()
	for _, change := range changes {
		for _, observer := range t.observers {
			observer.JobChanged(change)
		}
	}
}

func cloneJobs(jobs []*tasks.Job) []*tasks.Job {
	out := make([]*tasks.Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.Clone())
	}
	return out
}

func sortJobs(jobs []*tasks.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}
