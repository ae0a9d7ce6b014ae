// Package daemon coordinates the long-running callqa process.
//
// It wires configuration, the job store, the workflow manager and the HTTP
// API into a single lifecycle with flock-based locking to prevent multiple
// instances sharing one data directory. On start the daemon fails any job a
// previous process left RUNNING, then serves submissions and queries until it
// is stopped. Stopping cancels in-flight jobs and waits up to the configured
// shutdown timeout for them to be recorded as FAILED.
//
// Keep orchestration logic here: pipeline stages live in the workflow package
// and request validation in the api package, while the daemon focuses on
// startup, shutdown and the HTTP surface.
package daemon
