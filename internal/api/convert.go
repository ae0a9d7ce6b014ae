package api

import (
	"sort"
	"time"

	"callqa/internal/jobs"
	"callqa/internal/preflight"
	"callqa/internal/workflow"
)

// FromJob converts a job snapshot.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:         job.ID,
		Status:     string(job.Status),
		CreatedAt:  formatTime(job.CreatedAt),
		UpdatedAt:  formatTime(job.UpdatedAt),
		StartedAt:  formatTimePtr(job.StartedAt),
		FinishedAt: formatTimePtr(job.FinishedAt),
		Steps:      FromSteps(job.Steps),
		Failure:    FromFailure(job.Failure),
		HasReport:  job.Report != nil,
	}
	if stage, ok := job.CurrentStage(); ok && !job.Status.IsTerminal() {
		dto.CurrentStage = string(stage)
	}
	return dto
}

// FromJobs converts a slice of jobs, preserving order.
func FromJobs(list []*jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromSteps converts step records, preserving stage order.
func FromSteps(steps []jobs.StepRecord) []Step {
	out := make([]Step, 0, len(steps))
	for _, step := range steps {
		out = append(out, Step{
			Stage:      string(step.Stage),
			Status:     string(step.Status),
			StartedAt:  formatTimePtr(step.StartedAt),
			FinishedAt: formatTimePtr(step.FinishedAt),
			DurationMs: step.Duration().Milliseconds(),
			Output:     step.Output,
			Error:      step.Error,
		})
	}
	return out
}

// FromFailure converts failure info.
func FromFailure(failure *jobs.FailureInfo) *Failure {
	if failure == nil {
		return nil
	}
	return &Failure{Stage: string(failure.Stage), Kind: failure.Kind, Message: failure.Message}
}

// FromReport flattens a report. Lists are never null in the output.
func FromReport(report jobs.Report) Report {
	turns := make([]Turn, 0, len(report.ReferenceScript))
	for _, turn := range report.ReferenceScript {
		turns = append(turns, Turn{Speaker: string(turn.Speaker), Text: turn.Text})
	}
	return Report{
		AccuracyScore:   report.AccuracyScore,
		Summary:         report.Summary,
		KeyDifferences:  nonNil(report.KeyDifferences),
		Suggestions:     nonNil(report.Suggestions),
		Transcript:      report.Transcript,
		ReferenceScript: turns,
	}
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Accepting: summary.Accepting,
		Active:    make([]ActiveJob, 0, len(summary.Active)),
		LastJobID: summary.LastJobID,
		LastError: summary.LastError,
	}
	for _, active := range summary.Active {
		status.Active = append(status.Active, ActiveJob{ID: active.ID, Stage: string(active.Stage)})
	}
	return status
}

// FromProbeResults converts readiness results, preserving probe order.
func FromProbeResults(results []preflight.Result) []Dependency {
	out := make([]Dependency, 0, len(results))
	for _, result := range results {
		out = append(out, Dependency{Name: result.Name, Ready: result.Passed, Detail: result.Detail})
	}
	return out
}

// MergeJobStats normalizes counts so every status is present.
func MergeJobStats(stats map[jobs.Status]int) map[string]int {
	out := map[string]int{
		string(jobs.StatusPending):   0,
		string(jobs.StatusRunning):   0,
		string(jobs.StatusSucceeded): 0,
		string(jobs.StatusFailed):    0,
	}
	for status, count := range stats {
		out[string(status)] += count
	}
	return out
}

// SortedStatuses returns the keys of stats in lifecycle order.
func SortedStatuses(stats map[string]int) []string {
	order := map[string]int{
		string(jobs.StatusPending):   0,
		string(jobs.StatusRunning):   1,
		string(jobs.StatusSucceeded): 2,
		string(jobs.StatusFailed):    3,
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		if iok && jok {
			return oi < oj
		}
		if iok != jok {
			return iok
		}
		return keys[i] < keys[j]
	})
	return keys
}

// ParseTime parses an API timestamp. Invalid values return the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
