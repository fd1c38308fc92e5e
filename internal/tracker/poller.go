package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"casetrack/internal/backend"
	"casetrack/internal/logging"
	"casetrack/internal/tasks"
)

type poller struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

type fetchResult struct {
	status      *backend.TaskStatus
	err         error
	scheduleErr error
}

// startPollerLocked replaces any poller for job.ID. Caller holds t.mu.
func (t *Tracker) startPollerLocked(job *tasks.Job) {
	t.stopPollerLocked(job.ID)
	if t.stopped {
		return
	}
	ctx, cancel := context.WithCancel(logging.WithTaskID(t.baseCtx, job.ID))
	p := &poller{id: job.ID, ctx: ctx, cancel: cancel}
	t.pollers[job.ID] = p
	t.wg.Add(1)
	go t.runPoller(p, job.RegisteredAt)
}

// stopPollerLocked cancels the poller for id. Caller holds t.mu.
func (t *Tracker) stopPollerLocked(id string) {
	if p, ok := t.pollers[id]; ok {
		p.cancel()
		delete(t.pollers, id)
	}
}

func (t *Tracker) runPoller(p *poller, registeredAt time.Time) {
	defer t.wg.Done()
	defer p.cancel()

	logger := logging.WithContext(p.ctx, t.logger)
	remaining := registeredAt.Add(t.settings.Timeout).Sub(t.now())
	if remaining <= 0 {
		if t.expire(p) {
			return
		}
		remaining = t.expireRetryDelay()
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	ticker := time.NewTicker(t.settings.PollInterval)
	defer ticker.Stop()

	results := make(chan fetchResult, 1)
	inFlight := false
	dispatch := func() {
		if inFlight {
			logger.Debug("poll tick skipped; previous fetch still running")
			return
		}
		inFlight = true
		t.wg.Add(1)
		go t.submitFetch(p, results)
	}

	dispatch()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
			if t.expire(p) {
				return
			}
			timer.Reset(t.expireRetryDelay())
		case <-ticker.C:
			dispatch()
		case res := <-results:
			inFlight = false
			if res.scheduleErr != nil {
				t.logScheduleFailure(logger, res.scheduleErr)
				continue
			}
			if done := t.applyPoll(p, res); done {
				return
			}
		}
	}
}

// submitFetch hands one status fetch to the pool, waiting for a free worker
// so a freshly registered job is polled as soon as capacity allows.
func (t *Tracker) submitFetch(p *poller, results chan<- fetchResult) {
	defer t.wg.Done()
	if p.ctx.Err() != nil {
		return
	}
	err := t.pool.Submit(func() {
		status, err := t.fetcher.Status(p.ctx, p.id)
		select {
		case results <- fetchResult{status: status, err: err}:
		case <-p.ctx.Done():
		}
	})
	if err == nil {
		return
	}
	select {
	case results <- fetchResult{scheduleErr: err}:
	case <-p.ctx.Done():
	}
}

func (t *Tracker) logScheduleFailure(logger *slog.Logger, err error) {
	message := "status fetch not scheduled"
	if errors.Is(err, ants.ErrPoolOverload) {
		message = "status fetch skipped; fetch pool saturated"
	}
	logging.WarnWithContext(logger, message, "poll_schedule_failed",
		logging.Error(err),
		logging.Int("poll_workers", t.pool.Cap()),
		logging.String(logging.FieldImpact, "progress will refresh on the next tick"),
	)
}

// expireRetryDelay is how long a failed timeout write waits before trying again.
func (t *Tracker) expireRetryDelay() time.Duration {
	return min(t.settings.PollInterval, time.Second)
}

// applyPoll records one fetch outcome and reports whether polling should stop.
func (t *Tracker) applyPoll(p *poller, res fetchResult) bool {
	t.mu.Lock()
	if p.ctx.Err() != nil || t.pollers[p.id] != p {
		t.mu.Unlock()
		return true
	}
	job, ok := t.jobs[p.id]
	if !ok || job.State.IsTerminal() {
		t.mu.Unlock()
		return true
	}

	var patch tasks.Patch
	if res.err != nil || res.status == nil {
		err := res.err
		if err == nil {
			err = errors.New("empty status response")
		}
		failures := job.PollFailures + 1
		patch.PollFailures = &failures
		if failures >= t.settings.MaxPollFailures {
			state := tasks.StateFailed
			detail := fmt.Sprintf("Status polling failed after %d consecutive poll failures: %v", failures, err)
			patch.State = &state
			patch.ErrorDetail = &detail
			patch.StatusText = &detail
			logging.ErrorWithContext(t.logger, "task failed after consecutive poll failures", "task_poll_exhausted",
				logging.String(logging.FieldTaskID, p.id),
				logging.Int("poll_failures", failures),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check backend reachability and credentials, then retry the task"),
			)
		} else {
			logging.WarnWithContext(t.logger, "task status poll failed", "task_poll_failed",
				logging.String(logging.FieldTaskID, p.id),
				logging.Int("poll_failures", failures),
				logging.Int("max_poll_failures", t.settings.MaxPollFailures),
				logging.Error(err),
				logging.String(logging.FieldImpact, "task progress is stale until the next successful poll"),
			)
		}
	} else {
		patch = mapStatus(job, res.status, t.settings.InferProgress)
		zero := 0
		patch.PollFailures = &zero
		if unchanged(job, patch) {
			t.mu.Unlock()
			return false
		}
	}

	next, err := t.updateLocked(p.ctx, p.id, patch)
	if err != nil {
		t.mu.Unlock()
		if p.ctx.Err() == nil {
			logging.WarnWithContext(t.logger, "persist poll result failed", "task_persist_failed",
				logging.String(logging.FieldTaskID, p.id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the next poll will try again"),
			)
		}
		return false
	}
	return next.State.IsTerminal()
}

// expire forces a still-pending job to failed once its wall-clock budget is
// spent. It reports false when the failed state could not be persisted, in
// which case the poller keeps running and tries again.
func (t *Tracker) expire(p *poller) bool {
	t.mu.Lock()
	if p.ctx.Err() != nil || t.pollers[p.id] != p {
		t.mu.Unlock()
		return true
	}
	job, ok := t.jobs[p.id]
	if !ok || job.State.IsTerminal() {
		t.mu.Unlock()
		return true
	}
	state := tasks.StateFailed
	detail := fmt.Sprintf("Task timed out after %s without finishing", t.settings.Timeout)
	patch := tasks.Patch{State: &state, ErrorDetail: &detail, StatusText: &detail}
	if _, err := t.updateLocked(p.ctx, p.id, patch); err != nil {
		t.mu.Unlock()
		if p.ctx.Err() != nil {
			return true
		}
		logging.WarnWithContext(t.logger, "persist timeout failed", "task_persist_failed",
			logging.String(logging.FieldTaskID, p.id),
			logging.Error(err),
			logging.Duration("retry_in", t.expireRetryDelay()),
			logging.String(logging.FieldImpact, "task stays pending until the timeout is recorded"),
		)
		return false
	}
	logging.WarnWithContext(t.logger, "task timed out", "task_timeout",
		logging.String(logging.FieldTaskID, p.id),
		logging.Duration("timeout", t.settings.Timeout),
		logging.String(logging.FieldImpact, "task marked failed; the backend may still finish it"),
		logging.String(logging.FieldErrorHint, "retry the task to resume tracking"),
	)
	return true
}

func unchanged(job *tasks.Job, patch tasks.Patch) bool {
	next := job.Clone()
	patch.Apply(next, job.UpdatedAt)
	return next.State == job.State &&
		next.Progress == job.Progress &&
		next.StatusText == job.StatusText &&
		next.ErrorDetail == job.ErrorDetail &&
		next.PollFailures == job.PollFailures &&
		string(next.Result) == string(job.Result)
}
