package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"casetrack/internal/config"
)

// Store persists tracked jobs in tasks.db under the state directory. The
// daemon is its normal writer; the CLI writes directly only while the daemon
// is unreachable.
type Store struct {
	db   *sql.DB
	path string
}

// connectionPragmas are passed in the DSN so every pooled connection gets
// them. The busy timeout covers short overlaps between a stopping daemon and
// a CLI fallback write.
var connectionPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
}

// writeRetry bounds how long a write keeps retrying once busy_timeout has
// already given up. Reads are never retried.
var writeRetry = struct {
	attempts int
	initial  time.Duration
	ceiling  time.Duration
}{attempts: 4, initial: 25 * time.Millisecond, ceiling: 200 * time.Millisecond}

// Open opens the task database at cfg.DatabasePath, creating the state
// directory and schema on first use.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	path := cfg.DatabasePath()
	query := url.Values{"_pragma": connectionPragmas}
	db, err := sql.Open("sqlite", path+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("open task database %s: %w", path, err)
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location shown by `casetrack status`.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// exec runs a write statement, retrying while another process holds the
// write lock.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	delay := writeRetry.initial
	for attempt := 1; ; attempt++ {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err == nil || !isBusy(err) || attempt == writeRetry.attempts {
			return res, err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = min(delay*2, writeRetry.ceiling)
	}
}

// isBusy reports SQLITE_BUSY and its extended codes.
func isBusy(err error) bool {
	var sqlErr *sqlite.Error
	return errors.As(err, &sqlErr) && sqlErr.Code()&0xff == sqlite3.SQLITE_BUSY
}
