// Package api exposes the job submission and query operations shared by the
// HTTP daemon and the CLI, and the wire-format types they return.
//
// # Key Types
//
// JobService: Submit, Get, Report, Steps, List, Delete, Cleanup and
// SystemStatus over the job store and workflow manager.
//
// Job / Step: snapshot of a job and its seven pipeline steps.
//
// Report: the flat verification record
// {accuracyScore, summary, keyDifferences, suggestions, transcript,
// referenceScript: [{speaker, text}]}. Only SUCCEEDED jobs have one; asking
// for the report of any other job returns a ReportUnavailableError carrying
// the job status and, for FAILED jobs, the failure info.
//
// SystemStatus: readiness of every dependency, workflow state and job counts.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses and stage names keep their
// uppercase form. Timestamps use RFC3339 with milliseconds.
package api
