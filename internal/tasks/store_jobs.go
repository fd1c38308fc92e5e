package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Insert stores job unless a row with the same id exists. It reports whether a
// row was written.
func (s *Store) Insert(ctx context.Context, job *Job) (bool, error) {
	if job == nil || job.ID == "" {
		return false, errors.New("insert job: id is required")
	}
	res, err := s.exec(ctx,
		`INSERT OR IGNORE INTO tasks (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		string(job.State),
		job.Progress,
		nullableString(job.StatusText),
		nullableJSON(job.Result),
		nullableString(job.ErrorDetail),
		job.PollFailures,
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
		formatTime(job.RegisteredAt),
		nullableString(job.Context.Category),
		nullableString(job.Context.Title),
		nullableString(job.Context.Description),
		nullableString(job.Context.CaseID),
		nullableString(job.Context.Target),
	)
	if err != nil {
		return false, fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return affected > 0, nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM tasks WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// Save writes every mutable field of job. Context and CreatedAt never change.
func (s *Store) Save(ctx context.Context, job *Job) error {
	res, err := s.exec(ctx,
		`UPDATE tasks SET state = ?, progress = ?, status_text = ?, result_json = ?, error_detail = ?,
		 poll_failures = ?, updated_at = ?, registered_at = ? WHERE id = ?`,
		string(job.State),
		job.Progress,
		nullableString(job.StatusText),
		nullableJSON(job.Result),
		nullableString(job.ErrorDetail),
		job.PollFailures,
		formatTime(job.UpdatedAt),
		formatTime(job.RegisteredAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
	}
	return nil
}

// List returns jobs ordered by creation time, optionally filtered by state.
func (s *Store) List(ctx context.Context, states ...State) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM tasks`
	var args []any
	if len(states) > 0 {
		marks, stateArgs := statePlaceholders(states)
		query += ` WHERE state IN (` + marks + `)`
		args = stateArgs
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// Remove deletes a job. It reports whether a row existed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Clear removes every job.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes jobs in a terminal state, keeping queued and active ones.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	marks, args := statePlaceholders([]State{StateSucceeded, StateFailed, StateCancelled})
	res, err := s.exec(ctx, `DELETE FROM tasks WHERE state IN (`+marks+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear completed jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns job counts keyed by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM tasks GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int, len(allStates))
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[State(state)] = count
	}
	return stats, rows.Err()
}

// Retry re-queues a failed or cancelled job in place. The daemon re-polls it
// on the next start.
func (s *Store) Retry(ctx context.Context, id string, now time.Time) (*Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.ResetForRetry(now); err != nil {
		return nil, fmt.Errorf("%w: %s is %s", err, id, job.State)
	}
	if err := s.Save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}
