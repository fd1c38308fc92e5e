// Package daemonctl starts and stops the background daemon on behalf of the
// CLI: detached launch, readiness polling over the HTTP API, and
// SIGTERM-then-SIGKILL shutdown using the recorded pid.
package daemonctl
