package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"callqa/internal/config"
	"callqa/internal/events"
	"callqa/internal/jobs"
	"callqa/internal/logging"
	"callqa/internal/script"
	"callqa/internal/services"
	"callqa/internal/stage"
	"callqa/internal/testsupport"
	"callqa/internal/workflow"
)

const chineseScript = "客戶: 你好，我想查詢我的帳單。\n客服: 好的，請提供您的帳號。\n客戶: 我的帳號是一二三四五。\n客服: 謝謝，請稍等。"

func newManager(t *testing.T, adapters *testsupport.Adapters, opts ...workflow.ManagerOption) (*workflow.Manager, *jobs.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithVoiceFiles())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, adapters.Set(), logging.NewNop(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Stop(ctx)
	})
	return mgr, store, cfg
}

func runJob(t *testing.T, mgr *workflow.Manager, store *jobs.Store, raw string) (*jobs.Job, error) {
	t.Helper()
	job := testsupport.NewJob(t, store, raw)
	runErr := mgr.Run(context.Background(), job.ID)
	snapshot, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return snapshot, runErr
}

func stepStatuses(job *jobs.Job) map[jobs.Stage]jobs.StepStatus {
	out := make(map[jobs.Stage]jobs.StepStatus, len(job.Steps))
	for _, step := range job.Steps {
		out[step.Stage] = step.Status
	}
	return out
}

func assertSkippedAfter(t *testing.T, job *jobs.Job, failed jobs.Stage) {
	t.Helper()
	for _, step := range job.Steps {
		pos, failedPos := step.Stage.Position(), failed.Position()
		switch {
		case pos < failedPos && step.Status != jobs.StepDone:
			t.Fatalf("%s should be DONE, got %s", step.Stage, step.Status)
		case pos == failedPos && step.Status != jobs.StepFailed:
			t.Fatalf("%s should be FAILED, got %s", step.Stage, step.Status)
		case pos > failedPos && step.Status != jobs.StepSkipped:
			t.Fatalf("%s should be SKIPPED, got %s", step.Stage, step.Status)
		}
	}
}

func TestRunChineseScriptSucceeds(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Transcriber.Text = "你好我想查詢我的帳單 好的請提供您的帳號 我的帳號是一二三四五 謝謝請稍等"
	adapters.Analyzer.Responses = []testsupport.AnalyzerResponse{{Result: stage.AnalysisResult{
		AccuracyScore:  0.97,
		Summary:        "轉錄與腳本幾乎一致",
		KeyDifferences: []string{"語氣詞略有差異"},
		Suggestions:    []string{},
	}}}
	mgr, store, _ := newManager(t, adapters)

	job, err := runJob(t, mgr, store, chineseScript)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != jobs.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (%+v)", job.Status, job.Failure)
	}
	for _, step := range job.Steps {
		if step.Status != jobs.StepDone {
			t.Fatalf("%s not done: %s", step.Stage, step.Status)
		}
		if step.StartedAt == nil || step.FinishedAt == nil {
			t.Fatalf("%s missing timestamps", step.Stage)
		}
	}

	report := job.Report
	if report == nil {
		t.Fatal("expected report")
	}
	if report.AccuracyScore < 0 || report.AccuracyScore > 1 || report.Summary == "" {
		t.Fatalf("invalid report %+v", report)
	}
	if report.Transcript != adapters.Transcriber.Text {
		t.Fatalf("unexpected transcript %q", report.Transcript)
	}
	if len(report.ReferenceScript) != 4 || report.ReferenceScript[0].Speaker != script.SpeakerCustomer || report.ReferenceScript[3].Text != "謝謝，請稍等。" {
		t.Fatalf("unexpected reference script %+v", report.ReferenceScript)
	}

	turns := adapters.Synthesizer.Turns()
	if len(turns) != 4 || turns[1].Speaker != script.SpeakerAgent || turns[2].Text != "我的帳號是一二三四五。" {
		t.Fatalf("turns synthesized out of order: %+v", turns)
	}
	if adapters.Recorder.ClipCount(job.ID) != 4 {
		t.Fatalf("expected 4 clips stored, got %d", adapters.Recorder.ClipCount(job.ID))
	}

	again, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(again.Report, job.Report) {
		t.Fatal("report reads are not stable")
	}
}

func TestRunStepsAreStrictlyOrdered(t *testing.T) {
	adapters := testsupport.NewAdapters()
	mgr, store, _ := newManager(t, adapters)

	job, err := runJob(t, mgr, store, "customer: hi\nagent: hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 1; i < len(job.Steps); i++ {
		prev, cur := job.Steps[i-1], job.Steps[i]
		if prev.Stage.Position() != i-1 || cur.Stage.Position() != i {
			t.Fatalf("steps out of order: %s then %s", prev.Stage, cur.Stage)
		}
		if cur.StartedAt.Before(*prev.FinishedAt) {
			t.Fatalf("%s started before %s finished", cur.Stage, prev.Stage)
		}
	}
	store0, _ := job.Step(jobs.StageStore)
	if !strings.HasPrefix(store0.Output, "memory://") {
		t.Fatalf("unexpected store output %q", store0.Output)
	}
}

func TestRunParseFailureSkipsRemainingSteps(t *testing.T) {
	adapters := testsupport.NewAdapters()
	mgr, store, _ := newManager(t, adapters)

	job, err := runJob(t, mgr, store, "manager: hello\nagent: hi")
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if job.Status != jobs.StatusFailed || job.Failure == nil {
		t.Fatalf("expected FAILED with failure info, got %s", job.Status)
	}
	if job.Failure.Stage != jobs.StageParse || job.Failure.Kind != "parse" {
		t.Fatalf("unexpected failure %+v", job.Failure)
	}
	if job.Report != nil {
		t.Fatal("failed job must not carry a report")
	}
	assertSkippedAfter(t, job, jobs.StageParse)
	if adapters.Synthesizer.Calls() != 0 {
		t.Fatal("synthesizer must not run after a parse failure")
	}
}

func TestRunReadinessFailureListsEveryDependency(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Synthesizer.Unhealthy = "model not loaded"
	adapters.Analyzer.Unhealthy = "connection refused"
	mgr, store, _ := newManager(t, adapters)

	job, err := runJob(t, mgr, store, "customer: hi\nagent: hello")
	if !errors.Is(err, services.ErrReadiness) {
		t.Fatalf("expected readiness error, got %v", err)
	}
	if job.Failure == nil || job.Failure.Stage != jobs.StageReadiness || job.Failure.Kind != "readiness" {
		t.Fatalf("unexpected failure %+v", job.Failure)
	}
	for _, want := range []string{"synthesizer (model not loaded)", "analyzer (connection refused)"} {
		if !strings.Contains(job.Failure.Message, want) {
			t.Fatalf("failure message %q missing %q", job.Failure.Message, want)
		}
	}
	assertSkippedAfter(t, job, jobs.StageReadiness)
	if adapters.Synthesizer.Calls()+adapters.Recorder.Calls()+adapters.Transcriber.Calls()+adapters.Analyzer.Calls() != 0 {
		t.Fatal("no adapter may run after readiness fails")
	}
}

func TestRunSynthesisFailure(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Synthesizer.Hook = func(_ context.Context, turn script.Turn) error {
		if turn.Speaker == script.SpeakerAgent {
			return testsupport.Failing(services.ErrSynthesis, "synthesize")
		}
		return nil
	}
	mgr, store, _ := newManager(t, adapters)

	job, err := runJob(t, mgr, store, "customer: hi\nagent: hello")
	if !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if job.Failure.Stage != jobs.StageSynthesize || job.Failure.Kind != "synthesis" {
		t.Fatalf("unexpected failure %+v", job.Failure)
	}
	assertSkippedAfter(t, job, jobs.StageSynthesize)
	step, _ := job.Step(jobs.StageSynthesize)
	if step.Error == "" {
		t.Fatal("failed step must carry an error message")
	}
	if adapters.Recorder.Calls() != 0 {
		t.Fatal("recorder must not run after synthesis fails")
	}
}

func TestRunUnclassifiedAdapterErrorUsesStageKind(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Transcriber.Err = errors.New("socket closed")
	mgr, store, _ := newManager(t, adapters)

	job, err := runJob(t, mgr, store, "customer: hi\nagent: hello")
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}
	if job.Failure.Stage != jobs.StageTranscribe || job.Failure.Kind != "transcription" {
		t.Fatalf("unexpected failure %+v", job.Failure)
	}
	if !strings.Contains(job.Failure.Message, "socket closed") {
		t.Fatalf("unexpected message %q", job.Failure.Message)
	}
}

func TestAnalyzeRetriesMalformedOutput(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Analyzer.Responses = []testsupport.AnalyzerResponse{
		{Err: testsupport.Malformed("not json")},
		{Result: testsupport.DefaultAnalysis()},
	}
	mgr, store, _ := newManager(t, adapters)

	job, err := runJob(t, mgr, store, "customer: hi\nagent: hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != jobs.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", job.Status)
	}
	if adapters.Analyzer.Calls() != 2 {
		t.Fatalf("expected exactly 2 analyzer calls, got %d", adapters.Analyzer.Calls())
	}
}

func TestAnalyzeRetriesInvalidResult(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Analyzer.Responses = []testsupport.AnalyzerResponse{
		{Result: stage.AnalysisResult{AccuracyScore: 1.7, Summary: "too high"}},
		{Result: testsupport.DefaultAnalysis()},
	}
	mgr, store, _ := newManager(t, adapters)

	job, err := runJob(t, mgr, store, "customer: hi\nagent: hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Report == nil || job.Report.AccuracyScore != testsupport.DefaultAnalysis().AccuracyScore {
		t.Fatalf("unexpected report %+v", job.Report)
	}
	if adapters.Analyzer.Calls() != 2 {
		t.Fatalf("expected 2 analyzer calls, got %d", adapters.Analyzer.Calls())
	}
}

func TestAnalyzeGivesUpAfterThreeMalformedAttempts(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Analyzer.Responses = []testsupport.AnalyzerResponse{{Err: testsupport.Malformed("prose")}}
	mgr, store, _ := newManager(t, adapters)

	job, err := runJob(t, mgr, store, "customer: hi\nagent: hello")
	if !errors.Is(err, services.ErrAnalysis) {
		t.Fatalf("expected analysis error, got %v", err)
	}
	if adapters.Analyzer.Calls() != 3 {
		t.Fatalf("expected 3 analyzer calls, got %d", adapters.Analyzer.Calls())
	}
	if job.Failure.Stage != jobs.StageAnalyze || job.Failure.Kind != "analysis" {
		t.Fatalf("unexpected failure %+v", job.Failure)
	}
	if job.Report != nil {
		t.Fatal("no report may be substituted")
	}
	assertSkippedAfter(t, job, jobs.StageAnalyze)
}

func TestAnalyzeDoesNotRetryOtherErrors(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Analyzer.Responses = []testsupport.AnalyzerResponse{{Err: testsupport.Failing(services.ErrAnalysis, "analyze")}}
	mgr, store, _ := newManager(t, adapters)

	if _, err := runJob(t, mgr, store, "customer: hi\nagent: hello"); !errors.Is(err, services.ErrAnalysis) {
		t.Fatalf("expected analysis error, got %v", err)
	}
	if adapters.Analyzer.Calls() != 1 {
		t.Fatalf("expected 1 analyzer call, got %d", adapters.Analyzer.Calls())
	}
}

func TestConcurrentSubmissionsAreIsolated(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Transcriber.TextFor = func(handle stage.RecordingHandle) string {
		return "transcript of " + handle.Key
	}
	mgr, store, _ := newManager(t, adapters)

	const n = 10
	ids := make([]string, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := mgr.Submit(context.Background(), fmt.Sprintf("customer: question %d\nagent: answer %d", i, i))
			if err != nil {
				errs <- err
				return
			}
			ids[i] = id
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Submit: %v", err)
	}
	mgr.Wait()

	seen := make(map[string]bool, n)
	for i, id := range ids {
		if id == "" || seen[id] {
			t.Fatalf("job ids are not distinct: %v", ids)
		}
		seen[id] = true
		job, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status != jobs.StatusSucceeded {
			t.Fatalf("job %s: expected SUCCEEDED, got %s (%+v)", id, job.Status, job.Failure)
		}
		if job.Report.Transcript != "transcript of "+id+".wav" {
			t.Fatalf("job %s carries another job's transcript: %q", id, job.Report.Transcript)
		}
		want := fmt.Sprintf("question %d", i)
		if job.Report.ReferenceScript[0].Text != want {
			t.Fatalf("job %s carries another job's script: %+v", id, job.Report.ReferenceScript)
		}
	}
	if adapters.Analyzer.Calls() != n {
		t.Fatalf("expected %d analyzer calls, got %d", n, adapters.Analyzer.Calls())
	}
}

func TestStopCancelsInFlightJob(t *testing.T) {
	adapters := testsupport.NewAdapters()
	started := make(chan struct{})
	var once sync.Once
	adapters.Synthesizer.Hook = func(ctx context.Context, _ script.Turn) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}
	mgr, store, _ := newManager(t, adapters)

	id, err := mgr.Submit(context.Background(), "customer: hi\nagent: hello")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("synthesis never started")
	}
	if mgr.Running() != 1 {
		t.Fatalf("expected 1 running job, got %d", mgr.Running())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != jobs.StatusFailed || job.Failure.Message != workflow.CancelledMessage {
		t.Fatalf("expected cancelled failure, got %s %+v", job.Status, job.Failure)
	}
	assertSkippedAfter(t, job, jobs.StageSynthesize)

	if _, err := mgr.Submit(context.Background(), "customer: hi\nagent: hello"); !errors.Is(err, workflow.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	adapters := testsupport.NewAdapters()
	sink := &testsupport.EventSink{Err: errors.New("broker down")}
	mgr, store, _ := newManager(t, adapters, workflow.WithPublisher(sink))

	job, err := runJob(t, mgr, store, "customer: hi\nagent: hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	published := sink.Events(job.ID)
	// started + running/done per stage + finished
	if len(published) != 2+2*len(jobs.Stages) {
		t.Fatalf("expected %d events, got %d", 2+2*len(jobs.Stages), len(published))
	}
	if published[0].Type != events.JobStarted {
		t.Fatalf("first event should be job.started, got %s", published[0].Type)
	}
	last := published[len(published)-1]
	if last.Type != events.JobFinished || last.Status != string(jobs.StatusSucceeded) || last.AccuracyScore == nil {
		t.Fatalf("unexpected final event %+v", last)
	}
}

func TestStatusSummary(t *testing.T) {
	adapters := testsupport.NewAdapters()
	adapters.Transcriber.Err = testsupport.Failing(services.ErrTranscription, "transcribe")
	mgr, store, _ := newManager(t, adapters)

	job, _ := runJob(t, mgr, store, "customer: hi\nagent: hello")
	summary := mgr.Status(context.Background())
	if !summary.Accepting || len(summary.Active) != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.LastJobID != job.ID || summary.LastError == "" {
		t.Fatalf("expected last error for %s, got %+v", job.ID, summary)
	}
	if summary.JobStats[jobs.StatusFailed] != 1 {
		t.Fatalf("unexpected stats %+v", summary.JobStats)
	}
}

func TestWithReadinessOverride(t *testing.T) {
	adapters := testsupport.NewAdapters()
	mgr, store, _ := newManager(t, adapters, workflow.WithReadiness(readinessFunc(func() []string { return []string{"gpu"} })))

	job, err := runJob(t, mgr, store, "customer: hi\nagent: hello")
	if !errors.Is(err, services.ErrReadiness) || !strings.Contains(job.Failure.Message, "gpu") {
		t.Fatalf("expected gpu readiness failure, got %v / %+v", err, job.Failure)
	}
}
