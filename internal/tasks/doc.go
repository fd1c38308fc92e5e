// Package tasks persists tracked backend jobs in SQLite.
//
// The store mirrors the tracker's in-memory job list so a daemon restart can
// hydrate it again. It owns the schema (with a version guard), row mapping, and
// the bulk removal queries used by "clear" and "clear completed". Higher level
// semantics (polling, notifications, retry rules) live in internal/tracker.
package tasks
