// Package preflight provides readiness checks for the backend, the
// notification sinks, and the filesystem paths casetrack depends on.
//
// These checks run in two contexts:
//   - The daemon logs RunAll results once at startup so misconfiguration is
//     visible before the first poll fails.
//   - The CLI "casetrack status" command renders the same results next to the
//     per-state task counts.
//
// Optional sinks are only checked when configured.
package preflight
