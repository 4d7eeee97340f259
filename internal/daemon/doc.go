// Package daemon coordinates the long-running scanner process.
//
// It wires configuration, queue storage, the workflow manager, the local temp
// sweeper and the HTTP API into a single lifecycle with flock-based locking
// to prevent multiple instances. Jobs left processing by a previous run are
// returned to pending on start.
//
// Keep orchestration logic here: individual job steps live in their own
// packages while the daemon focuses on startup, shutdown, and the API surface.
package daemon
