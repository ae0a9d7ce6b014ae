// Package events publishes job lifecycle changes to NATS.
//
// When nats.events_enabled is set the workflow emits job.started, job.step
// and job.finished events as JSON on <events_subject>.started, .step and
// .finished, with the job id also carried in the Callqa-Job-Id header.
// Publishing is best effort: the workflow logs failures and carries on.
// When events are disabled NewPublisher returns Noop.
package events
