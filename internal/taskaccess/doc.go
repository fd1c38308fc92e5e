// Package taskaccess gives CLI commands one view of tracked tasks whether the
// daemon is running or not.
//
// When the daemon answers, operations go through its HTTP API so the tracker
// sees every change immediately. When it does not, the SQLite store is opened
// directly and the daemon reconciles the changes on its next start.
package taskaccess
