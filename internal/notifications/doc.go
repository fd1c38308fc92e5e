// Package notifications turns task transitions into user-facing notifications.
//
// The Dispatcher observes the tracker and decides, once per transition, whether
// a "started", "completed", "failed", or "cancelled" notification is due. It
// de-duplicates with per-job markers, primes itself from the hydrated job list
// so a restart replays nothing, and forgets finished jobs after a retention
// delay. Delivery goes through the Service interface; the Hub fans each
// notification out to the in-memory feed the CLI reads, the log, ntfy, and
// Redis pub/sub when those are configured.
package notifications
