package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"callqa/internal/events"
	"callqa/internal/jobs"
	"callqa/internal/logging"
	"callqa/internal/preflight"
	"callqa/internal/script"
	"callqa/internal/services"
	"callqa/internal/stage"
)

func (m *Manager) pipeline() []pipelineStage {
	return []pipelineStage{
		{name: jobs.StageParse, marker: services.ErrParse, run: m.parseStage},
		{name: jobs.StageReadiness, marker: services.ErrReadiness, run: m.readinessStage},
		{name: jobs.StageSynthesize, marker: services.ErrSynthesis, run: m.synthesizeStage},
		{name: jobs.StageStore, marker: services.ErrStorage, run: m.storeStage},
		{name: jobs.StageTranscribe, marker: services.ErrTranscription, run: m.transcribeStage},
		{name: jobs.StageAnalyze, marker: services.ErrAnalysis, run: m.analyzeStage},
		{name: jobs.StageReport, marker: services.ErrAnalysis, run: m.reportStage},
	}
}

func stageLabel(name jobs.Stage) string {
	return strings.ToLower(string(name))
}

// executeStage records the step as RUNNING, calls the stage and records the
// outcome before returning.
func (m *Manager) executeStage(storeCtx, ctx context.Context, run *jobRun, stg pipelineStage) error {
	ctx = services.WithStage(ctx, stageLabel(stg.name))
	logger := logging.WithContext(ctx, m.logger)

	if err := m.store.UpdateStep(storeCtx, run.id, jobs.StepRecord{Stage: stg.name, Status: jobs.StepRunning}); err != nil {
		m.setLastError(run.id, err)
		logger.Error("failed to record stage start", logging.Error(err), logging.String(logging.FieldEventType, "step_persist_failed"))
		return err
	}
	m.markActive(run.id, stg.name)
	m.publish(ctx, events.Event{Type: events.StepChanged, JobID: run.id, Stage: string(stg.name), Status: string(jobs.StepRunning)})

	stageStart := time.Now()
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	output, err := stg.run(ctx, run)
	if err != nil {
		if ctx.Err() != nil {
			return m.failStage(storeCtx, ctx, run, stg.name, "cancelled", CancelledMessage, err)
		}
		err = ensureMarker(err, stg.marker, stageLabel(stg.name))
		details := services.Details(err)
		return m.failStage(storeCtx, ctx, run, stg.name, details.Kind, details.Message, err)
	}

	if err := m.store.UpdateStep(storeCtx, run.id, jobs.StepRecord{Stage: stg.name, Status: jobs.StepDone, Output: output}); err != nil {
		m.setLastError(run.id, err)
		logger.Error("failed to record stage result", logging.Error(err), logging.String(logging.FieldEventType, "step_persist_failed"))
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("output", summarizeOutput(output)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.publish(ctx, events.Event{Type: events.StepChanged, JobID: run.id, Stage: string(stg.name), Status: string(jobs.StepDone)})
	return nil
}

// ensureMarker tags errors that adapters returned without a classification.
func ensureMarker(err, marker error, stageName string) error {
	if services.Kind(err) != "unknown" {
		return err
	}
	return services.Wrap(marker, stageName, "execute", "", err)
}

func summarizeOutput(output string) string {
	const limit = 120
	runes := []rune(output)
	if len(runes) <= limit {
		return output
	}
	return string(runes[:limit]) + "…"
}

func (m *Manager) parseStage(_ context.Context, run *jobRun) (string, error) {
	parsed, err := script.Parse(run.raw)
	if err != nil {
		return "", err
	}
	run.script = parsed
	stats := parsed.Stats()
	return fmt.Sprintf("%d turns (customer %d, agent %d) hash %s",
		stats.DialogueLines, stats.CustomerLines, stats.AgentLines, stats.Hash), nil
}

func (m *Manager) readinessStage(ctx context.Context, _ *jobRun) (string, error) {
	unavailable := m.readiness.Check(ctx)
	if len(unavailable) > 0 {
		msg := "unavailable dependencies: " + preflight.Summarize(unavailable)
		return "", services.Wrap(services.ErrReadiness, "readiness", "check", msg, nil)
	}
	return "all dependencies available", nil
}

// synthesizeStage voices every turn in script order.
func (m *Manager) synthesizeStage(ctx context.Context, run *jobRun) (string, error) {
	synth := m.adapters.Synthesizer
	if synth == nil {
		return "", services.Wrap(services.ErrSynthesis, "synthesize", "init", "synthesizer not configured", nil)
	}
	clips := make([]stage.AudioClip, 0, len(run.script.Turns))
	var total time.Duration
	for i, turn := range run.script.Turns {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		clip, err := synth.Synthesize(ctx, turn)
		if err != nil {
			return "", fmt.Errorf("turn %d (%s): %w", i+1, turn.Speaker, err)
		}
		if len(clip.Data) == 0 {
			return "", services.Wrap(services.ErrSynthesis, "synthesize", "validate", fmt.Sprintf("turn %d produced no audio", i+1), nil)
		}
		total += clip.Duration()
		clips = append(clips, clip)
	}
	run.clips = clips
	return fmt.Sprintf("%d clips, %s", len(clips), total.Round(time.Millisecond)), nil
}

func (m *Manager) storeStage(ctx context.Context, run *jobRun) (string, error) {
	recorder := m.adapters.Recorder
	if recorder == nil {
		return "", services.Wrap(services.ErrStorage, "store", "init", "recorder not configured", nil)
	}
	handle, err := recorder.Store(ctx, run.id, run.clips)
	if err != nil {
		return "", err
	}
	run.recording = handle
	run.clips = nil
	return handle.String(), nil
}

func (m *Manager) transcribeStage(ctx context.Context, run *jobRun) (string, error) {
	transcriber := m.adapters.Transcriber
	if transcriber == nil {
		return "", services.Wrap(services.ErrTranscription, "transcribe", "init", "transcriber not configured", nil)
	}
	transcript, err := transcriber.Transcribe(ctx, run.recording)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return "", services.Wrap(services.ErrTranscription, "transcribe", "validate", "empty transcript", nil)
	}
	run.transcript = transcript
	return transcript.Text, nil
}

// analyzeStage retries only malformed analyzer output. Any other failure,
// or an exhausted budget, ends the stage.
func (m *Manager) analyzeStage(ctx context.Context, run *jobRun) (string, error) {
	analyzer := m.adapters.Analyzer
	if analyzer == nil {
		return "", services.Wrap(services.ErrAnalysis, "analyze", "init", "analyzer not configured", nil)
	}
	logger := logging.WithContext(ctx, m.logger)
	var lastErr error
	for attempt := 1; attempt <= m.analyzeAttempts; attempt++ {
		result, err := analyzer.Analyze(ctx, run.script, run.transcript)
		if err == nil {
			err = result.Validate()
		}
		if err == nil {
			run.analysis = result
			return fmt.Sprintf("accuracy %.4f after %d attempt(s)", result.AccuracyScore, attempt), nil
		}
		if !errors.Is(err, services.ErrMalformedOutput) {
			return "", err
		}
		lastErr = err
		logging.WarnWithContext(logger, "analysis output malformed", "analysis_retry",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", m.analyzeAttempts),
			logging.Error(err),
			logging.String(logging.FieldImpact, "analysis attempt discarded"),
		)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	msg := fmt.Sprintf("model output malformed after %d attempts", m.analyzeAttempts)
	return "", services.Wrap(services.ErrAnalysis, "analyze", "retry", msg, lastErr)
}

func (m *Manager) reportStage(_ context.Context, run *jobRun) (string, error) {
	if err := run.analysis.Validate(); err != nil {
		return "", err
	}
	turns := make([]script.Turn, len(run.script.Turns))
	copy(turns, run.script.Turns)
	report := jobs.Report{
		AccuracyScore:   run.analysis.AccuracyScore,
		Summary:         run.analysis.Summary,
		KeyDifferences:  append([]string{}, run.analysis.KeyDifferences...),
		Suggestions:     append([]string{}, run.analysis.Suggestions...),
		Transcript:      run.transcript.Text,
		ReferenceScript: turns,
	}
	run.report = &report
	return fmt.Sprintf("%.4f", report.AccuracyScore), nil
}
