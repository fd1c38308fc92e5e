// Package daemon coordinates the long-running casetrack process.
//
// It wires configuration, task storage, the tracker, the notification
// dispatcher, and the submission service into a single lifecycle with
// flock-based locking to prevent multiple instances per state directory. The
// daemon owns the HTTP API that the CLI and other frontends use.
//
// Keep orchestration logic here: polling lives in the tracker and delivery in
// the notifications package, while the daemon focuses on startup, shutdown,
// and the API surface.
package daemon
