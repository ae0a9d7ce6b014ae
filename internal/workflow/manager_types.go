package workflow

import (
	"context"

	"callqa/internal/jobs"
	"callqa/internal/script"
	"callqa/internal/stage"
)

const defaultAnalyzeAttempts = 3

// jobRun carries intermediate artifacts between stages of one job. It is
// owned by a single goroutine.
type jobRun struct {
	id         string
	raw        string
	script     script.Script
	clips      []stage.AudioClip
	recording  stage.RecordingHandle
	transcript stage.Transcript
	analysis   stage.AnalysisResult
	report     *jobs.Report
}

// stageFunc executes one stage and returns the step output reference.
type stageFunc func(ctx context.Context, run *jobRun) (string, error)

type pipelineStage struct {
	name   jobs.Stage
	marker error
	run    stageFunc
}
