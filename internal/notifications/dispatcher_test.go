package notifications_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrack/internal/backend"
	"casetrack/internal/logging"
	"casetrack/internal/notifications"
	"casetrack/internal/tasks"
	"casetrack/internal/testsupport"
	"casetrack/internal/tracker"
)

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingService struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingService) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{event: event, payload: payload})
	return nil
}

func (r *recordingService) list() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.events...)
}

func (r *recordingService) count(event notifications.Event) int {
	n := 0
	for _, p := range r.list() {
		if p.event == event {
			n++
		}
	}
	return n
}

func job(id string, state tasks.State) *tasks.Job {
	j := tasks.NewJob(id, tasks.Context{Category: "evidence_analysis", CaseID: "12", Target: "/cases/12/evidence"}, time.Now())
	j.State = state
	return j
}

func update(d *notifications.Dispatcher, prev, next *tasks.Job) {
	d.JobChanged(tracker.Change{Kind: tracker.ChangeUpdated, Previous: prev, Current: next})
}

func TestDispatcherEmitsOncePerTransition(t *testing.T) {
	rec := &recordingService{}
	d := notifications.NewDispatcher(rec, time.Hour, logging.NewNop())

	queued := job("a", tasks.StateQueued)
	d.JobChanged(tracker.Change{Kind: tracker.ChangeAdded, Current: queued})

	active := job("a", tasks.StateActive)
	update(d, queued, active)
	update(d, active, active)

	back := job("a", tasks.StateQueued)
	update(d, active, back)
	update(d, back, active)

	done := job("a", tasks.StateSucceeded)
	done.StatusText = "12 exhibits analysed"
	update(d, active, done)
	update(d, done, done)
	d.Close()

	events := rec.list()
	require.Len(t, events, 2)
	assert.Equal(t, notifications.EventTaskStarted, events[0].event)
	assert.Equal(t, notifications.EventTaskCompleted, events[1].event)
	assert.Equal(t, "12 exhibits analysed", events[1].payload["message"])
	assert.Equal(t, "/cases/12/evidence", events[1].payload["target"])
}

func TestDispatcherFailureAndCancellationFromAnyState(t *testing.T) {
	rec := &recordingService{}
	d := notifications.NewDispatcher(rec, time.Hour, logging.NewNop())

	d.JobChanged(tracker.Change{Kind: tracker.ChangeAdded, Current: job("f", tasks.StateQueued)})
	failed := job("f", tasks.StateFailed)
	failed.ErrorDetail = "bad file"
	update(d, job("f", tasks.StateQueued), failed)

	d.JobChanged(tracker.Change{Kind: tracker.ChangeAdded, Current: job("c", tasks.StateQueued)})
	update(d, job("c", tasks.StateQueued), job("c", tasks.StateActive))
	update(d, job("c", tasks.StateActive), job("c", tasks.StateCancelled))
	d.Close()

	assert.Equal(t, 1, rec.count(notifications.EventTaskFailed))
	assert.Equal(t, 1, rec.count(notifications.EventTaskCancelled))
	assert.Equal(t, 1, rec.count(notifications.EventTaskStarted))
	for _, p := range rec.list() {
		if p.event == notifications.EventTaskFailed {
			assert.Equal(t, "bad file", p.payload["error"])
		}
	}
}

func TestDispatcherPrimeSuppressesReplay(t *testing.T) {
	rec := &recordingService{}
	d := notifications.NewDispatcher(rec, time.Hour, logging.NewNop())

	d.Prime([]*tasks.Job{job("done", tasks.StateSucceeded), job("run", tasks.StateActive)})
	update(d, job("done", tasks.StateSucceeded), job("done", tasks.StateSucceeded))
	update(d, job("run", tasks.StateActive), job("run", tasks.StateActive))
	update(d, job("run", tasks.StateActive), job("run", tasks.StateSucceeded))
	d.Close()

	assert.Equal(t, 0, rec.count(notifications.EventTaskStarted))
	assert.Equal(t, 1, rec.count(notifications.EventTaskCompleted))
}

func TestDispatcherUnknownJobIsRecordedSilently(t *testing.T) {
	rec := &recordingService{}
	d := notifications.NewDispatcher(rec, time.Hour, logging.NewNop())

	update(d, nil, job("ghost", tasks.StateFailed))
	assert.True(t, d.Tracked("ghost"))
	d.Close()
	assert.Empty(t, rec.list())
}

func TestDispatcherRetryClearsMarkers(t *testing.T) {
	rec := &recordingService{}
	d := notifications.NewDispatcher(rec, time.Hour, logging.NewNop())

	d.JobChanged(tracker.Change{Kind: tracker.ChangeAdded, Current: job("r", tasks.StateQueued)})
	update(d, job("r", tasks.StateQueued), job("r", tasks.StateActive))
	update(d, job("r", tasks.StateActive), job("r", tasks.StateFailed))
	update(d, job("r", tasks.StateFailed), job("r", tasks.StateQueued))
	update(d, job("r", tasks.StateQueued), job("r", tasks.StateActive))
	update(d, job("r", tasks.StateActive), job("r", tasks.StateFailed))
	d.Close()

	assert.Equal(t, 2, rec.count(notifications.EventTaskStarted))
	assert.Equal(t, 2, rec.count(notifications.EventTaskFailed))
}

func TestDispatcherCleansUpAfterRetention(t *testing.T) {
	rec := &recordingService{}
	d := notifications.NewDispatcher(rec, 20*time.Millisecond, logging.NewNop())
	defer d.Close()

	d.JobChanged(tracker.Change{Kind: tracker.ChangeAdded, Current: job("x", tasks.StateQueued)})
	update(d, job("x", tasks.StateQueued), job("x", tasks.StateSucceeded))
	assert.True(t, d.Tracked("x"))
	require.Eventually(t, func() bool { return !d.Tracked("x") }, time.Second, 5*time.Millisecond)

	d.JobChanged(tracker.Change{Kind: tracker.ChangeAdded, Current: job("y", tasks.StateQueued)})
	d.JobChanged(tracker.Change{Kind: tracker.ChangeRemoved, Previous: job("y", tasks.StateQueued)})
	assert.False(t, d.Tracked("y"))
}

func TestDispatcherSubmissionFailure(t *testing.T) {
	rec := &recordingService{}
	d := notifications.NewDispatcher(rec, time.Hour, logging.NewNop())
	d.NotifySubmissionFailed("card_casting", "7", assert.AnError)
	d.Close()

	events := rec.list()
	require.Len(t, events, 1)
	assert.Equal(t, notifications.EventSubmissionFailed, events[0].event)
	assert.Equal(t, assert.AnError.Error(), events[0].payload["error"])
}

func TestTrackerScenarioRaisesStartedAndCompletedOnce(t *testing.T) {
	fake := testsupport.NewBackend(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(fake.URL()))
	store := testsupport.MustOpenStore(t, cfg)

	feed := notifications.NewFeed(50)
	d := notifications.NewDispatcher(feed, time.Hour, logging.NewNop())
	tr, err := tracker.New(tracker.SettingsFromConfig(cfg), store, backend.New(cfg), logging.NewNop())
	require.NoError(t, err)
	tr.Subscribe(d)
	t.Cleanup(d.Close)
	t.Cleanup(tr.Stop)
	require.NoError(t, tr.Start(context.Background()))

	fake.Script("scenario",
		testsupport.StatusJSON(`{"status":"PENDING"}`),
		testsupport.StatusJSON(`{"status":"PROGRESS","info":{"status":"classifying","progress":45}}`),
		testsupport.StatusJSON(`{"status":"PROGRESS","info":{"status":"classifying","progress":60}}`),
		testsupport.StatusJSON(`{"status":"SUCCESS","result":{"message":"Evidence analysed"}}`),
	)
	_, _, err = tr.Add(context.Background(), "scenario", tasks.Context{Category: "evidence_analysis", Title: "Evidence analysis", CaseID: "3"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		items := feed.Since(0, 0)
		return len(items) > 0 && items[len(items)-1].Event == notifications.EventTaskCompleted
	}, 3*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	items := feed.Since(0, 0)
	require.Len(t, items, 2)
	assert.Equal(t, notifications.EventTaskStarted, items[0].Event)
	assert.Equal(t, "Evidence analysis started", items[0].Title)
	assert.Equal(t, notifications.EventTaskCompleted, items[1].Event)
	assert.Equal(t, "Evidence analysed", items[1].Message)
}
