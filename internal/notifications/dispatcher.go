package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"casetrack/internal/logging"
	"casetrack/internal/tasks"
	"casetrack/internal/tracker"
)

const (
	dispatchQueueSize = 256
	publishTimeout    = 15 * time.Second
)

type outbound struct {
	event   Event
	payload Payload
}

type marks struct {
	started  bool
	terminal bool
}

// Dispatcher raises exactly one notification per meaningful job transition.
// Decisions are made synchronously as tracker changes arrive; delivery runs
// on a background goroutine so slow sinks never stall the tracker.
type Dispatcher struct {
	notifier  Service
	retention time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	snapshots map[string]tasks.State
	markers   map[string]*marks
	timers    map[string]*time.Timer
	closed    bool

	queue chan outbound
	done  chan struct{}
}

// NewDispatcher starts a dispatcher publishing through notifier.
func NewDispatcher(notifier Service, retention time.Duration, logger *slog.Logger) *Dispatcher {
	if notifier == nil {
		notifier = NewNoop()
	}
	d := &Dispatcher{
		notifier:  notifier,
		retention: retention,
		logger:    logging.NewComponentLogger(logger, "dispatcher"),
		snapshots: make(map[string]tasks.State),
		markers:   make(map[string]*marks),
		timers:    make(map[string]*time.Timer),
		queue:     make(chan outbound, dispatchQueueSize),
		done:      make(chan struct{}),
	}
	go d.deliver()
	return d
}

var _ tracker.Observer = (*Dispatcher)(nil)

// Hydrated primes the dispatcher with the jobs loaded at startup. Terminal
// jobs are pre-marked and active ones count as already started, so nothing is
// replayed after a restart.
func (d *Dispatcher) Hydrated(jobs []*tasks.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, job := range jobs {
		d.observeFirstLocked(job)
	}
}

// Prime is an alias for Hydrated for callers that load jobs themselves.
func (d *Dispatcher) Prime(jobs []*tasks.Job) {
	d.Hydrated(jobs)
}

// JobChanged implements tracker.Observer.
func (d *Dispatcher) JobChanged(change tracker.Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch change.Kind {
	case tracker.ChangeRemoved:
		if change.Previous != nil {
			d.forgetLocked(change.Previous.ID)
		}
		return
	case tracker.ChangeAdded:
		if change.Current != nil {
			d.observeFirstLocked(change.Current)
		}
		return
	}

	job := change.Current
	if job == nil {
		return
	}
	prev, known := d.snapshots[job.ID]
	if !known {
		d.observeFirstLocked(job)
		return
	}
	next := job.State
	d.snapshots[job.ID] = next
	m := d.marksLocked(job.ID)

	if prev.IsTerminal() && next == tasks.StateQueued {
		m.started = false
		m.terminal = false
		d.stopTimerLocked(job.ID)
		return
	}

	switch {
	case next == tasks.StateActive && prev == tasks.StateQueued && !m.started:
		m.started = true
		d.enqueueLocked(EventTaskStarted, job)
	case next.IsTerminal() && prev != next && !m.terminal:
		var event Event
		switch next {
		case tasks.StateSucceeded:
			if prev.IsTerminal() {
				return
			}
			event = EventTaskCompleted
		case tasks.StateFailed:
			event = EventTaskFailed
		case tasks.StateCancelled:
			event = EventTaskCancelled
		}
		m.terminal = true
		d.enqueueLocked(event, job)
		d.scheduleCleanupLocked(job.ID)
	}
}

// NotifySubmissionFailed publishes an immediate submission failure.
func (d *Dispatcher) NotifySubmissionFailed(category, caseID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	payload := Payload{"category": category, "caseID": caseID}
	if err != nil {
		payload["error"] = err.Error()
	}
	d.sendLocked(outbound{event: EventSubmissionFailed, payload: payload})
}

// Tracked reports whether the dispatcher still holds state for id.
func (d *Dispatcher) Tracked(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.snapshots[id]
	return ok
}

// Close stops accepting notifications, drains the queue, and cancels
// pending cleanups.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for id := range d.timers {
		d.stopTimerLocked(id)
	}
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) observeFirstLocked(job *tasks.Job) {
	d.snapshots[job.ID] = job.State
	m := d.marksLocked(job.ID)
	switch {
	case job.State.IsTerminal():
		m.started = true
		m.terminal = true
		d.scheduleCleanupLocked(job.ID)
	case job.State == tasks.StateActive:
		m.started = true
	}
}

func (d *Dispatcher) marksLocked(id string) *marks {
	m, ok := d.markers[id]
	if !ok {
		m = &marks{}
		d.markers[id] = m
	}
	return m
}

func (d *Dispatcher) forgetLocked(id string) {
	d.stopTimerLocked(id)
	delete(d.snapshots, id)
	delete(d.markers, id)
}

func (d *Dispatcher) stopTimerLocked(id string) {
	if timer, ok := d.timers[id]; ok {
		timer.Stop()
		delete(d.timers, id)
	}
}

func (d *Dispatcher) scheduleCleanupLocked(id string) {
	if d.closed {
		return
	}
	d.stopTimerLocked(id)
	var timer *time.Timer
	timer = time.AfterFunc(d.retention, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.timers[id] != timer {
			return
		}
		delete(d.timers, id)
		delete(d.snapshots, id)
		delete(d.markers, id)
	})
	d.timers[id] = timer
}

func (d *Dispatcher) enqueueLocked(event Event, job *tasks.Job) {
	payload := Payload{
		"taskID":   job.ID,
		"title":    job.Context.Title,
		"category": job.Context.Category,
		"caseID":   job.Context.CaseID,
		"target":   job.Context.Target,
		"message":  job.StatusText,
	}
	if job.ErrorDetail != "" {
		payload["error"] = job.ErrorDetail
	}
	d.sendLocked(outbound{event: event, payload: payload})
}

func (d *Dispatcher) sendLocked(msg outbound) {
	if d.closed {
		return
	}
	select {
	case d.queue <- msg:
	default:
		logging.WarnWithContext(d.logger, "notification dropped", "notification_dropped",
			logging.String("notification", string(msg.event)),
			logging.String(logging.FieldImpact, "user will not see this notification"),
			logging.String(logging.FieldErrorHint, "check that notification sinks are responsive"),
		)
	}
}

func (d *Dispatcher) deliver() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.notifier.Publish(ctx, msg.event, msg.payload); err != nil {
			logging.WarnWithContext(d.logger, "notification delivery failed", "notification_failed",
				logging.String("notification", string(msg.event)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "one or more sinks missed this notification"),
			)
		}
		cancel()
	}
}
