// Package tracker owns the authoritative list of tracked backend jobs.
//
// A Tracker keeps jobs in memory, writes every mutation through to the
// SQLite store before observers hear about it, and runs one poller goroutine
// per queued or active job. Pollers fetch remote status on a shared ants pool,
// map it onto local fields, and stop once the job is terminal, removed,
// retried, timed out, or failed too many polls in a row.
package tracker
