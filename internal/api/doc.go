// Package api defines wire-format types and converters for the daemon HTTP
// API. It translates tracked jobs into transport-friendly DTOs that the CLI
// and other frontends can render without coupling to internal types.
//
// # Key Types
//
// Task: transport representation of a tracked job with progress, status text,
// the backend result, and its submission context.
//
// TaskListResponse: items plus the same items grouped by state so frontends
// can render sections without regrouping.
//
// DaemonStatus: running state, storage paths, per-state counts, active sinks
// and preflight results.
//
// # Converters
//
// FromJob / FromJobs: tasks.Job -> Task.
//
// GroupByState: ordered grouping keyed by state name, every state present.
//
// MergeStats: fills missing states with zero counts.
//
// # Client
//
// Client talks to a running daemon. Transport failures wrap
// ErrDaemonUnavailable so callers can fall back to the local store;
// API errors surface as *fiber.Error carrying the HTTP status.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Result is passed through as json.RawMessage to avoid double-encoding.
package api
