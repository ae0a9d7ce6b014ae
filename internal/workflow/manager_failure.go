package workflow

import (
	"context"
	"errors"
	"strings"

	"callqa/internal/events"
	"callqa/internal/jobs"
	"callqa/internal/logging"
)

// failStage marks the running step FAILED and finalizes the job. It returns
// stageErr so callers can propagate it.
func (m *Manager) failStage(storeCtx, ctx context.Context, run *jobRun, name jobs.Stage, kind, message string, stageErr error) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = string(name) + " failed"
	}
	logger := logging.WithContext(ctx, m.logger)
	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_kind", kind),
		logging.String("error_message", message),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, hintFor(kind)),
	)
	if err := m.store.UpdateStep(storeCtx, run.id, jobs.StepRecord{Stage: name, Status: jobs.StepFailed, Error: message}); err != nil {
		logger.Error("failed to record stage failure", logging.Error(err), logging.String(logging.FieldEventType, "step_persist_failed"))
	}
	m.publish(ctx, events.Event{Type: events.StepChanged, JobID: run.id, Stage: string(name), Status: string(jobs.StepFailed), Message: message})
	failure := jobs.FailureInfo{Stage: name, Kind: kind, Message: message}
	if err := m.finishFailed(storeCtx, ctx, run.id, failure, stageErr); err != nil && !errors.Is(err, stageErr) {
		return err
	}
	return stageErr
}

// finishFailed finalizes the job as FAILED. Pending steps become SKIPPED.
func (m *Manager) finishFailed(storeCtx, ctx context.Context, id string, failure jobs.FailureInfo, cause error) error {
	m.setLastError(id, cause)
	if err := m.store.Finalize(storeCtx, id, jobs.Outcome{Failure: &failure}); err != nil {
		logging.WithContext(ctx, m.logger).Error("failed to persist job failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_finalize_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		return err
	}
	m.publish(ctx, events.Event{
		Type:    events.JobFinished,
		JobID:   id,
		Stage:   string(failure.Stage),
		Status:  string(jobs.StatusFailed),
		Message: failure.Message,
	})
	return cause
}

func hintFor(kind string) string {
	switch kind {
	case "parse":
		return "fix the script and resubmit"
	case "readiness":
		return "start the listed dependencies and resubmit"
	case "synthesis":
		return "check the speech synthesis engine and reference voices"
	case "storage":
		return "check the recording backend"
	case "transcription":
		return "check the transcription endpoint and api key"
	case "analysis", "malformed_output":
		return "check the analysis model endpoint"
	case "cancelled":
		return "resubmit once the daemon is running again"
	default:
		return "check logs for details"
	}
}
