// Package preflight checks pipeline dependencies before any paid work runs.
//
// A Checker holds an ordered list of probes: working directories, the
// per-role reference voice files, and the health check of every stage
// adapter (synthesis engine loaded, transcription and analysis endpoints
// reachable, recording backend writable). Probes run concurrently, each under
// its own timeout, and results come back in declaration order. Check returns
// every failing probe, not just the first, so a readiness failure names all
// missing dependencies at once. RunAll backs the status surfaces.
package preflight
