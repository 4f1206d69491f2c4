// Package daemon coordinates the long-running worker process.
//
// It wires configuration, the job store, the workflow manager and the HTTP
// status server into a single lifecycle with flock-based locking so only one
// worker owns a data directory at a time. Pipeline steps live in their own
// packages; the daemon only starts, stops and reports on them.
package daemon
