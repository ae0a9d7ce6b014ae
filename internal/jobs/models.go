package jobs

import (
	"time"

	"callqa/internal/script"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Stage names one step of the pipeline.
type Stage string

const (
	StageParse      Stage = "PARSE"
	StageReadiness  Stage = "READINESS"
	StageSynthesize Stage = "SYNTHESIZE"
	StageStore      Stage = "STORE"
	StageTranscribe Stage = "TRANSCRIBE"
	StageAnalyze    Stage = "ANALYZE"
	StageReport     Stage = "REPORT"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageParse,
	StageReadiness,
	StageSynthesize,
	StageStore,
	StageTranscribe,
	StageAnalyze,
	StageReport,
}

// Position returns the zero-based execution index of the stage, or -1.
func (s Stage) Position() int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// StepStatus represents the lifecycle of a single stage within a job.
type StepStatus string

const (
	StepPending StepStatus = "PENDING"
	StepRunning StepStatus = "RUNNING"
	StepDone    StepStatus = "DONE"
	StepFailed  StepStatus = "FAILED"
	StepSkipped StepStatus = "SKIPPED"
)

// IsTerminal reports whether the step can no longer change.
func (s StepStatus) IsTerminal() bool {
	return s == StepDone || s == StepFailed || s == StepSkipped
}

// StepRecord captures the outcome of one stage. Output holds a short
// stage-specific reference such as a turn count, recording handle or score.
type StepRecord struct {
	Stage      Stage
	Status     StepStatus
	StartedAt  *time.Time
	FinishedAt *time.Time
	Output     string
	Error      string
}

// Duration returns the elapsed time of a finished step.
func (r StepRecord) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// Report is the final verification result attached to a succeeded job.
type Report struct {
	AccuracyScore   float64       `json:"accuracyScore"`
	Summary         string        `json:"summary"`
	KeyDifferences  []string      `json:"keyDifferences"`
	Suggestions     []string      `json:"suggestions"`
	Transcript      string        `json:"transcript"`
	ReferenceScript []script.Turn `json:"referenceScript"`
}

// FailureInfo describes why a job failed.
type FailureInfo struct {
	Stage   Stage  `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is a persisted verification run.
type Job struct {
	ID         string
	Status     Status
	Script     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Steps      []StepRecord
	Report     *Report
	Failure    *FailureInfo
}

// Step returns the record for the named stage.
func (j *Job) Step(stage Stage) (StepRecord, bool) {
	if j == nil {
		return StepRecord{}, false
	}
	for _, step := range j.Steps {
		if step.Stage == stage {
			return step, true
		}
	}
	return StepRecord{}, false
}

// CurrentStage returns the running stage, or the first pending one when
// nothing is running. The boolean is false once every step is terminal.
func (j *Job) CurrentStage() (Stage, bool) {
	if j == nil {
		return "", false
	}
	for _, step := range j.Steps {
		if step.Status == StepRunning {
			return step.Stage, true
		}
	}
	for _, step := range j.Steps {
		if step.Status == StepPending {
			return step.Stage, true
		}
	}
	return "", false
}

// Outcome finalizes a job. Exactly one of Report or Failure must be set.
type Outcome struct {
	Report  *Report
	Failure *FailureInfo
}

// Succeeded builds a success outcome.
func Succeeded(report Report) Outcome {
	return Outcome{Report: &report}
}

// Failed builds a failure outcome.
func Failed(stage Stage, kind, message string) Outcome {
	return Outcome{Failure: &FailureInfo{Stage: stage, Kind: kind, Message: message}}
}

// HealthSummary aggregates job counts for status output.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Succeeded int
	Failed    int
}
