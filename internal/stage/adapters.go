package stage

import (
	"context"

	"callqa/internal/script"
)

// Health is an adapter's answer to a readiness probe.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports name as ready.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports name as unavailable for the reason in detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// HealthChecker is implemented by every adapter so readiness can be probed
// before a job uses it.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}

// Synthesizer turns a single script turn into audio using the speaker's
// reference voice.
type Synthesizer interface {
	Synthesize(context.Context, script.Turn) (AudioClip, error)
	HealthChecker
}

// Recorder combines ordered clips into one recording and persists it.
type Recorder interface {
	Store(ctx context.Context, jobID string, clips []AudioClip) (RecordingHandle, error)
	HealthChecker
}

// Transcriber converts a stored recording back into text.
type Transcriber interface {
	Transcribe(context.Context, RecordingHandle) (Transcript, error)
	HealthChecker
}

// Analyzer compares a transcript against the reference script.
type Analyzer interface {
	Analyze(context.Context, script.Script, Transcript) (AnalysisResult, error)
	HealthChecker
}

// Set bundles the adapters one pipeline run uses. Adapters are constructed
// once and shared by every job.
type Set struct {
	Synthesizer Synthesizer
	Recorder    Recorder
	Transcriber Transcriber
	Analyzer    Analyzer
}

// Missing names the adapters that are nil.
func (s Set) Missing() []string {
	var missing []string
	if s.Synthesizer == nil {
		missing = append(missing, "synthesizer")
	}
	if s.Recorder == nil {
		missing = append(missing, "recorder")
	}
	if s.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if s.Analyzer == nil {
		missing = append(missing, "analyzer")
	}
	return missing
}
