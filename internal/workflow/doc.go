// Package workflow runs verification jobs through the seven pipeline stages.
//
// The Manager owns the stage adapters, the job store and the readiness
// checker. Submit persists a PENDING job and starts one goroutine for it;
// Run executes PARSE, READINESS, SYNTHESIZE, STORE, TRANSCRIBE, ANALYZE and
// REPORT strictly in order, recording each step as RUNNING before the adapter
// is called and DONE or FAILED before the next stage begins. The first
// failure finalizes the job as FAILED with the stage, error kind and message;
// the store marks every remaining step SKIPPED. Nothing is substituted for a
// failed stage, so a report only exists for SUCCEEDED jobs.
//
// ANALYZE is the only stage that retries: up to three attempts, and only
// when the analyzer reports malformed output. Shutdown is observed at stage
// boundaries; a job interrupted by Stop fails with
// "cancelled: manager shutting down".
//
// Store writes are serialized per job by the store itself. The manager never
// holds a lock while an adapter runs, so jobs proceed independently.
package workflow
