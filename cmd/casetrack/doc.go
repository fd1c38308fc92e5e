// Package main implements the casetrack command-line client.
//
// Commands talk to the running daemon over its HTTP API. Task listing,
// removal, retry, and clearing fall back to the local SQLite store when the
// daemon is not reachable; submission, tracking, and notifications require
// the daemon.
package main
