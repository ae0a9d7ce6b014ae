package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Claim moves a PENDING job to RUNNING.
func (s *Store) Claim(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	now := formatTime(s.now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read job status: %w", err)
		}
		if status != StatusPending {
			return invalidTransition("claim job %s: status is %s", id, status)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, started_at = ?, updated_at = ? WHERE id = ?`,
			StatusRunning, now, now, id,
		); err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		return nil
	})
}

// UpdateStep replaces the record for rec.Stage. Allowed transitions are
// PENDING → RUNNING (every earlier step DONE) and RUNNING → DONE|FAILED.
// Timestamps left nil are filled with the current time.
func (s *Store) UpdateStep(ctx context.Context, id string, rec StepRecord) error {
	position := rec.Stage.Position()
	if position < 0 {
		return invalidTransition("unknown stage %q", rec.Stage)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := loadJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if job.Status != StatusRunning {
			return invalidTransition("update %s on job %s: job is %s", rec.Stage, id, job.Status)
		}
		if len(job.Steps) != len(Stages) {
			return fmt.Errorf("job %s has %d steps, expected %d", id, len(job.Steps), len(Stages))
		}
		if err := checkStepTransition(job.Steps, position, rec.Status); err != nil {
			return err
		}

		current := job.Steps[position]
		startedAt, finishedAt := current.StartedAt, current.FinishedAt
		output, stepErr := current.Output, current.Error
		switch rec.Status {
		case StepRunning:
			startedAt = timeOr(rec.StartedAt, now)
		case StepDone:
			finishedAt = timeOr(rec.FinishedAt, now)
			output = rec.Output
		case StepFailed:
			finishedAt = timeOr(rec.FinishedAt, now)
			output = rec.Output
			stepErr = rec.Error
		}
		if startedAt == nil {
			startedAt = finishedAt
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE job_steps SET status = ?, started_at = ?, finished_at = ?, output = ?, error = ?
             WHERE job_id = ? AND position = ?`,
			rec.Status, nullableTime(startedAt), nullableTime(finishedAt),
			nullableString(output), nullableString(stepErr), id, position,
		); err != nil {
			return fmt.Errorf("update step %s: %w", rec.Stage, err)
		}
		return touchJob(ctx, tx, id, now)
	})
}

func checkStepTransition(steps []StepRecord, position int, next StepStatus) error {
	current := steps[position]
	switch {
	case current.Status == StepPending && next == StepRunning:
		for _, prior := range steps[:position] {
			if prior.Status != StepDone {
				return invalidTransition("start %s: %s is %s", current.Stage, prior.Stage, prior.Status)
			}
		}
		return nil
	case current.Status == StepRunning && (next == StepDone || next == StepFailed):
		return nil
	default:
		return invalidTransition("step %s cannot move from %s to %s", current.Stage, current.Status, next)
	}
}

// Finalize moves a job to its terminal status. A success outcome requires
// every step DONE; a failure outcome fails the running step and skips every
// pending one. Finished jobs cannot be finalized again.
func (s *Store) Finalize(ctx context.Context, id string, outcome Outcome) error {
	if (outcome.Report == nil) == (outcome.Failure == nil) {
		return invalidTransition("outcome for job %s must carry exactly one of report or failure", id)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := loadJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return invalidTransition("finalize job %s: already %s", id, job.Status)
		}
		if outcome.Failure != nil {
			return finalizeFailureTx(ctx, tx, job, *outcome.Failure, now)
		}

		if job.Status != StatusRunning {
			return invalidTransition("finalize job %s: job is %s", id, job.Status)
		}
		for _, step := range job.Steps {
			if step.Status != StepDone {
				return invalidTransition("finalize job %s: %s is %s", id, step.Stage, step.Status)
			}
		}
		payload, err := json.Marshal(outcome.Report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		stamp := formatTime(now)
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, report_json = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
			StatusSucceeded, string(payload), stamp, stamp, id,
		); err != nil {
			return fmt.Errorf("finalize job: %w", err)
		}
		return nil
	})
}

func finalizeFailureTx(ctx context.Context, tx *sql.Tx, job *Job, failure FailureInfo, now time.Time) error {
	stamp := formatTime(now)
	for position, step := range job.Steps {
		switch step.Status {
		case StepRunning:
			msg := step.Error
			if msg == "" {
				msg = failure.Message
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE job_steps SET status = ?, finished_at = ?, error = ? WHERE job_id = ? AND position = ?`,
				StepFailed, stamp, msg, job.ID, position,
			); err != nil {
				return fmt.Errorf("fail step %s: %w", step.Stage, err)
			}
		case StepPending:
			if _, err := tx.ExecContext(ctx,
				`UPDATE job_steps SET status = ? WHERE job_id = ? AND position = ?`,
				StepSkipped, job.ID, position,
			); err != nil {
				return fmt.Errorf("skip step %s: %w", step.Stage, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, failure_stage = ?, failure_kind = ?, failure_message = ?,
             finished_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusFailed, string(failure.Stage), nullableString(failure.Kind), failure.Message,
		stamp, stamp, job.ID,
	); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// ResetInterrupted fails every job left PENDING or RUNNING by a previous
// process. It returns the number of jobs changed.
func (s *Store) ResetInterrupted(ctx context.Context, message string) (int64, error) {
	now := s.now()
	var changed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		changed = 0
		ids, err := selectIDs(ctx, tx, `SELECT id FROM jobs WHERE status IN (?, ?)`, StatusPending, StatusRunning)
		if err != nil {
			return fmt.Errorf("select interrupted jobs: %w", err)
		}
		for _, id := range ids {
			job, err := loadJob(ctx, tx, id)
			if err != nil {
				return err
			}
			stage, ok := job.CurrentStage()
			if !ok {
				stage = StageReport
			}
			failure := FailureInfo{Stage: stage, Kind: "interrupted", Message: message}
			if err := finalizeFailureTx(ctx, tx, job, failure, now); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	return changed, err
}

func touchJob(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET updated_at = ? WHERE id = ?`, formatTime(now), id); err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	return nil
}

func timeOr(value *time.Time, fallback time.Time) *time.Time {
	if value != nil {
		v := value.UTC()
		return &v
	}
	return &fallback
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}
