// Package logs reads the daemon's JSON log file for `casetrack logs`.
//
// Tail streams the file with bounded memory, supports "last N lines" reads
// and follow mode, and applies an optional Filter so only entries for one
// task, component, or minimum level are returned. Entries are parsed from the
// JSON records the logging package tees to disk.
package logs
