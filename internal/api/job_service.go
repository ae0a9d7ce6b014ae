package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callqa/internal/jobs"
	"callqa/internal/logging"
	"callqa/internal/preflight"
	"callqa/internal/workflow"
)

var (
	// ErrInvalidRequest reports a request the service refuses to act on.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrReportUnavailable reports a job that has no report yet or never will.
	ErrReportUnavailable = errors.New("report unavailable")
)

// ReportUnavailableError carries the job status when no report exists.
type ReportUnavailableError struct {
	JobID   string
	Status  jobs.Status
	Failure *jobs.FailureInfo
}

func (e *ReportUnavailableError) Error() string {
	if e.Failure != nil {
		return fmt.Sprintf("job %s failed at %s: %s", e.JobID, e.Failure.Stage, e.Failure.Message)
	}
	return fmt.Sprintf("job %s is %s; report not ready", e.JobID, e.Status)
}

func (e *ReportUnavailableError) Unwrap() error {
	return ErrReportUnavailable
}

// Submitter starts jobs.
type Submitter interface {
	Submit(ctx context.Context, rawScript string) (string, error)
	Status(ctx context.Context) workflow.StatusSummary
}

// RecordingRemover deletes the stored recording of a job.
type RecordingRemover interface {
	Remove(ctx context.Context, jobID string) error
}

// ProbeRunner reports every dependency probe.
type ProbeRunner interface {
	RunAll(ctx context.Context) []preflight.Result
}

// JobService exposes job operations returning API DTOs.
type JobService struct {
	store      *jobs.Store
	submitter  Submitter
	recordings RecordingRemover
	probes     ProbeRunner
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceOption configures optional JobService collaborators.
type ServiceOption func(*JobService)

// WithRecordings removes recordings together with their jobs.
func WithRecordings(r RecordingRemover) ServiceOption {
	return func(s *JobService) { s.recordings = r }
}

// WithProbes reports dependency readiness in SystemStatus.
func WithProbes(p ProbeRunner) ServiceOption {
	return func(s *JobService) { s.probes = p }
}

// WithClock overrides the time source used by Cleanup.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *JobService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewJobService constructs a JobService. submitter may be nil for read-only
// use such as the CLI talking to the database directly.
func NewJobService(store *jobs.Store, submitter Submitter, logger *slog.Logger, opts ...ServiceOption) *JobService {
	s := &JobService{
		store:     store,
		submitter: submitter,
		logger:    logging.NewComponentLogger(logger, "job-service"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request and hands the script to the workflow.
func (s *JobService) Submit(ctx context.Context, rawScript string) (SubmitResponse, error) {
	if strings.TrimSpace(rawScript) == "" {
		return SubmitResponse{}, fmt.Errorf("%w: script is empty", ErrInvalidRequest)
	}
	if s.submitter == nil {
		return SubmitResponse{}, fmt.Errorf("%w: workflow not running", ErrInvalidRequest)
	}
	id, err := s.submitter.Submit(ctx, rawScript)
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{JobID: id}, nil
}

// Get returns a snapshot of job id.
func (s *JobService) Get(ctx context.Context, id string) (Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// Report returns the verification report of a SUCCEEDED job.
func (s *JobService) Report(ctx context.Context, id string) (Report, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if job.Status != jobs.StatusSucceeded || job.Report == nil {
		return Report{}, &ReportUnavailableError{JobID: id, Status: job.Status, Failure: job.Failure}
	}
	return FromReport(*job.Report), nil
}

// Steps returns the pipeline steps of job id in stage order.
func (s *JobService) Steps(ctx context.Context, id string) (StepsResponse, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return StepsResponse{}, err
	}
	return StepsResponse{JobID: job.ID, Steps: FromSteps(job.Steps)}, nil
}

// List returns up to limit jobs, newest first.
func (s *JobService) List(ctx context.Context, limit int) (JobListResponse, error) {
	list, err := s.store.List(ctx, limit)
	if err != nil {
		return JobListResponse{}, err
	}
	return JobListResponse{Jobs: FromJobs(list)}, nil
}

// Delete removes a finished job and its recording.
func (s *JobService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.removeRecording(ctx, id)
	return nil
}

// Cleanup removes finished jobs created more than days ago.
func (s *JobService) Cleanup(ctx context.Context, days int) (CleanupResponse, error) {
	if days < 0 {
		return CleanupResponse{}, fmt.Errorf("%w: days must not be negative", ErrInvalidRequest)
	}
	cutoff := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	if s.recordings != nil {
		list, err := s.store.List(ctx, 0)
		if err != nil {
			return CleanupResponse{}, err
		}
		for _, job := range list {
			if job.Status.IsTerminal() && job.CreatedAt.Before(cutoff) {
				s.removeRecording(ctx, job.ID)
			}
		}
	}
	removed, err := s.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return CleanupResponse{}, err
	}
	s.logger.Info("cleanup complete",
		logging.Int("days", days),
		logging.Int("removed", int(removed)),
		logging.String(logging.FieldEventType, "jobs_cleanup"),
	)
	return CleanupResponse{Removed: removed, Cutoff: formatTime(cutoff)}, nil
}

// SystemStatus reports dependency readiness, workflow state and job counts.
func (s *JobService) SystemStatus(ctx context.Context) (SystemStatus, error) {
	status := SystemStatus{Ready: true, Dependencies: []Dependency{}, DatabasePath: s.store.Path()}
	if s.probes != nil {
		status.Dependencies = FromProbeResults(s.probes.RunAll(ctx))
		for _, dep := range status.Dependencies {
			if !dep.Ready {
				status.Ready = false
			}
		}
	}
	if s.submitter != nil {
		summary := s.submitter.Status(ctx)
		status.Workflow = FromStatusSummary(summary)
		status.JobStats = MergeJobStats(summary.JobStats)
		return status, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return status, err
	}
	status.JobStats = MergeJobStats(stats)
	status.Workflow.Active = []ActiveJob{}
	return status, nil
}

func (s *JobService) removeRecording(ctx context.Context, id string) {
	if s.recordings == nil {
		return
	}
	if err := s.recordings.Remove(ctx, id); err != nil {
		logging.WarnWithContext(s.logger, "recording cleanup failed", "recording_cleanup_failed",
			logging.String(logging.FieldJobID, id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the recording backend"),
			logging.String(logging.FieldImpact, "recording file left behind"),
		)
	}
}
