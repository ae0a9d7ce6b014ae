// Package jobs persists verification jobs and their per-stage step records in
// SQLite.
//
// A job moves PENDING → RUNNING → SUCCEEDED|FAILED and owns seven step records
// in fixed stage order. The Store validates every transition so callers
// cannot start a stage before its predecessors are DONE, change a finished
// step, or attach a report to a job that did not complete every stage. Reads
// return a consistent snapshot of the job row and all of its steps; writes for
// the same job are serialized while different jobs proceed independently.
package jobs
