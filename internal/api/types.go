package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a verification job in a transport-friendly format.
type Job struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	CurrentStage string   `json:"currentStage,omitempty"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
	StartedAt    string   `json:"startedAt,omitempty"`
	FinishedAt   string   `json:"finishedAt,omitempty"`
	Steps        []Step   `json:"steps"`
	Failure      *Failure `json:"failure,omitempty"`
	HasReport    bool     `json:"hasReport"`
}

// Step is one pipeline stage of a job.
type Step struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failure explains why a job failed.
type Failure struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Turn is one reference script line.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Report is the verification result of a succeeded job.
type Report struct {
	AccuracyScore   float64  `json:"accuracyScore"`
	Summary         string   `json:"summary"`
	KeyDifferences  []string `json:"keyDifferences"`
	Suggestions     []string `json:"suggestions"`
	Transcript      string   `json:"transcript"`
	ReferenceScript []Turn   `json:"referenceScript"`
}

// Dependency mirrors one readiness probe.
type Dependency struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// ActiveJob names a running job and its current stage.
type ActiveJob struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
}

// WorkflowStatus summarizes orchestrator state.
type WorkflowStatus struct {
	Accepting bool        `json:"accepting"`
	Active    []ActiveJob `json:"active"`
	LastJobID string      `json:"lastJobId,omitempty"`
	LastError string      `json:"lastError,omitempty"`
}

// SystemStatus aggregates readiness, workflow state and job counts.
type SystemStatus struct {
	Ready        bool           `json:"ready"`
	Dependencies []Dependency   `json:"dependencies"`
	Workflow     WorkflowStatus `json:"workflow"`
	JobStats     map[string]int `json:"jobStats"`
	DatabasePath string         `json:"databasePath,omitempty"`
}

// SubmitRequest is the body of a job submission.
type SubmitRequest struct {
	Script string `json:"script"`
}

// SubmitResponse returns the identifier of an accepted job.
type SubmitResponse struct {
	JobID string `json:"jobId"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// StepsResponse wraps the steps of one job.
type StepsResponse struct {
	JobID string `json:"jobId"`
	Steps []Step `json:"steps"`
}

// CleanupResponse reports a cleanup run.
type CleanupResponse struct {
	Removed int64  `json:"removed"`
	Cutoff  string `json:"cutoff"`
}

// ErrorResponse is the body of every non-2xx HTTP response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Status  string   `json:"status,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}
