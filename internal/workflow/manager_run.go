package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"callqa/internal/events"
	"callqa/internal/jobs"
	"callqa/internal/logging"
	"callqa/internal/services"
)

// CancelledMessage is the failure message for jobs interrupted by Stop.
const CancelledMessage = "cancelled: manager shutting down"

// Submit persists a new job and starts it in the background. It returns
// before any stage runs.
func (m *Manager) Submit(ctx context.Context, rawScript string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return "", ErrStopped
	}
	job, err := m.store.Create(ctx, rawScript)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.Run(m.ctx, job.ID); err != nil {
			m.logger.Debug("job finished with error", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
	}()
	logging.WithContext(ctx, m.logger).Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	return job.ID, nil
}

// Stop cancels in-flight jobs and waits for their goroutines, or until ctx
// ends. Jobs observe the cancellation at their next stage boundary.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// Wait blocks until every submitted job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Run claims job id and executes every stage in order. The returned error is
// the stage failure, if any; the job record carries the same information.
func (m *Manager) Run(ctx context.Context, id string) error {
	storeCtx := context.WithoutCancel(ctx)
	ctx = services.WithJobID(ctx, id)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)

	job, err := m.store.Get(storeCtx, id)
	if err != nil {
		return err
	}
	if err := m.store.Claim(storeCtx, id); err != nil {
		return err
	}
	m.markActive(id, jobs.StageParse)
	defer m.markInactive(id)

	started := time.Now()
	logger.Info("job started", logging.String(logging.FieldEventType, "job_start"))
	m.publish(ctx, events.Event{Type: events.JobStarted, JobID: id, Status: string(jobs.StatusRunning)})

	run := &jobRun{id: id, raw: job.Script}
	for _, stg := range m.pipeline() {
		if ctx.Err() != nil {
			return m.cancelJob(storeCtx, ctx, run, stg.name)
		}
		if err := m.executeStage(storeCtx, ctx, run, stg); err != nil {
			return err
		}
	}

	if err := m.store.Finalize(storeCtx, id, jobs.Succeeded(*run.report)); err != nil {
		m.setLastError(id, err)
		logger.Error("failed to persist job report", logging.Error(err), logging.String(logging.FieldEventType, "job_finalize_failed"))
		return err
	}
	score := run.report.AccuracyScore
	logger.Info("job succeeded",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Float64("accuracy_score", score),
		logging.Duration("job_duration", time.Since(started)),
	)
	m.publish(ctx, events.Event{
		Type:          events.JobFinished,
		JobID:         id,
		Status:        string(jobs.StatusSucceeded),
		AccuracyScore: &score,
	})
	return nil
}

// cancelJob fails the job at the boundary before next.
func (m *Manager) cancelJob(storeCtx, ctx context.Context, run *jobRun, next jobs.Stage) error {
	logger := logging.WithContext(ctx, m.logger)
	logging.WarnWithContext(logger, "job cancelled", "job_cancelled",
		logging.String("next_stage", string(next)),
		logging.String(logging.FieldImpact, "job marked failed; resubmit after restart"),
	)
	failure := jobs.FailureInfo{Stage: next, Kind: "cancelled", Message: CancelledMessage}
	return m.finishFailed(storeCtx, ctx, run.id, failure, errors.New(CancelledMessage))
}

func (m *Manager) markActive(id string, stg jobs.Stage) {
	m.mu.Lock()
	m.active[id] = stg
	m.mu.Unlock()
}

func (m *Manager) markInactive(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.lastJob = id
	m.mu.Unlock()
}
