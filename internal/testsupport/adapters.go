package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"callqa/internal/events"
	"callqa/internal/recording"
	"callqa/internal/script"
	"callqa/internal/services"
	"callqa/internal/stage"
)

// ClipFormat is the PCM layout produced by FakeSynthesizer.
var ClipFormat = recording.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// Clip returns a short silent WAV clip for speaker.
func Clip(speaker script.Speaker) stage.AudioClip {
	pcm := recording.Silence(ClipFormat, 100*time.Millisecond)
	return stage.AudioClip{
		Speaker:       speaker,
		Data:          recording.EncodeWAV(recording.WAV{Format: ClipFormat, PCM: pcm}),
		Format:        "wav",
		SampleRate:    ClipFormat.SampleRate,
		Channels:      ClipFormat.Channels,
		BitsPerSample: ClipFormat.BitsPerSample,
	}
}

func health(name, unhealthy string) stage.Health {
	if unhealthy != "" {
		return stage.Unhealthy(name, unhealthy)
	}
	return stage.Healthy(name)
}

// FakeSynthesizer returns silent clips and records the turns it was asked
// to speak. Hook, when set, runs before each call and may fail it.
type FakeSynthesizer struct {
	Unhealthy string
	Hook      func(ctx context.Context, turn script.Turn) error

	mu    sync.Mutex
	turns []script.Turn
}

func (f *FakeSynthesizer) Synthesize(ctx context.Context, turn script.Turn) (stage.AudioClip, error) {
	f.mu.Lock()
	f.turns = append(f.turns, turn)
	hook := f.Hook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, turn); err != nil {
			return stage.AudioClip{}, err
		}
	}
	return Clip(turn.Speaker), nil
}

func (f *FakeSynthesizer) HealthCheck(context.Context) stage.Health {
	return health("synthesizer", f.Unhealthy)
}

// Calls returns the number of Synthesize calls.
func (f *FakeSynthesizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.turns)
}

// Turns returns the turns synthesized so far, in call order.
func (f *FakeSynthesizer) Turns() []script.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]script.Turn(nil), f.turns...)
}

// FakeRecorder merges clips in memory with recording.Merge.
type FakeRecorder struct {
	Err       error
	Unhealthy string
	Pause     time.Duration

	mu      sync.Mutex
	stored  map[string]recording.WAV
	batches map[string]int
}

func (f *FakeRecorder) Store(_ context.Context, jobID string, clips []stage.AudioClip) (stage.RecordingHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches == nil {
		f.batches = make(map[string]int)
		f.stored = make(map[string]recording.WAV)
	}
	f.batches[jobID] = len(clips)
	if f.Err != nil {
		return stage.RecordingHandle{}, f.Err
	}
	data := make([][]byte, 0, len(clips))
	for _, clip := range clips {
		data = append(data, clip.Data)
	}
	merged, err := recording.Merge(data, f.Pause)
	if err != nil {
		return stage.RecordingHandle{}, services.Wrap(services.ErrStorage, "store", "merge", "merge clips", err)
	}
	f.stored[jobID] = merged
	return stage.RecordingHandle{
		Key:      recording.Key(jobID),
		Backend:  "memory",
		Size:     int64(len(recording.EncodeWAV(merged))),
		Duration: merged.Duration(),
	}, nil
}

func (f *FakeRecorder) HealthCheck(context.Context) stage.Health {
	return health("recording", f.Unhealthy)
}

// Calls returns the number of Store calls.
func (f *FakeRecorder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// ClipCount returns how many clips were stored for jobID.
func (f *FakeRecorder) ClipCount(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[jobID]
}

// Recording returns the merged audio stored for jobID.
func (f *FakeRecorder) Recording(jobID string) (recording.WAV, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.stored[jobID]
	return w, ok
}

// FakeTranscriber returns Text for every recording. TextFor, when set,
// overrides Text per handle.
type FakeTranscriber struct {
	Text      string
	TextFor   func(handle stage.RecordingHandle) string
	Err       error
	Unhealthy string

	mu      sync.Mutex
	handles []stage.RecordingHandle
}

func (f *FakeTranscriber) Transcribe(_ context.Context, handle stage.RecordingHandle) (stage.Transcript, error) {
	f.mu.Lock()
	f.handles = append(f.handles, handle)
	f.mu.Unlock()
	if f.Err != nil {
		return stage.Transcript{}, f.Err
	}
	text := f.Text
	if f.TextFor != nil {
		text = f.TextFor(handle)
	}
	if text == "" {
		return stage.Transcript{}, services.Wrap(services.ErrTranscription, "transcribe", "decode", "empty transcript", nil)
	}
	return stage.Transcript{Text: text}, nil
}

func (f *FakeTranscriber) HealthCheck(context.Context) stage.Health {
	return health("transcriber", f.Unhealthy)
}

// Calls returns the number of Transcribe calls.
func (f *FakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

// AnalyzerResponse is one scripted Analyze outcome.
type AnalyzerResponse struct {
	Result stage.AnalysisResult
	Err    error
}

// FakeAnalyzer replays Responses in order, repeating the last one. With no
// responses it returns DefaultAnalysis.
type FakeAnalyzer struct {
	Responses []AnalyzerResponse
	Unhealthy string

	mu          sync.Mutex
	calls       int
	transcripts []string
}

// DefaultAnalysis is the verdict FakeAnalyzer returns when unscripted.
func DefaultAnalysis() stage.AnalysisResult {
	return stage.AnalysisResult{
		AccuracyScore:  0.95,
		Summary:        "transcript matches the script",
		KeyDifferences: []string{},
		Suggestions:    []string{},
	}
}

// Malformed returns an analyzer error tagged as malformed output.
func Malformed(detail string) error {
	return services.Wrap(services.ErrMalformedOutput, "analyze", "decode", detail, nil)
}

func (f *FakeAnalyzer) Analyze(_ context.Context, _ script.Script, transcript stage.Transcript) (stage.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.transcripts = append(f.transcripts, transcript.Text)
	if len(f.Responses) == 0 {
		return DefaultAnalysis(), nil
	}
	idx := f.calls - 1
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	resp := f.Responses[idx]
	if resp.Err != nil {
		return stage.AnalysisResult{}, resp.Err
	}
	return resp.Result, nil
}

func (f *FakeAnalyzer) HealthCheck(context.Context) stage.Health {
	return health("analyzer", f.Unhealthy)
}

// Calls returns the number of Analyze calls.
func (f *FakeAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Adapters groups one fake of each stage adapter.
type Adapters struct {
	Synthesizer *FakeSynthesizer
	Recorder    *FakeRecorder
	Transcriber *FakeTranscriber
	Analyzer    *FakeAnalyzer
}

// NewAdapters returns healthy fakes whose pipeline succeeds.
func NewAdapters() *Adapters {
	return &Adapters{
		Synthesizer: &FakeSynthesizer{},
		Recorder:    &FakeRecorder{},
		Transcriber: &FakeTranscriber{Text: "hello thanks for calling"},
		Analyzer:    &FakeAnalyzer{},
	}
}

// Set exposes the fakes as a stage.Set.
func (a *Adapters) Set() stage.Set {
	return stage.Set{
		Synthesizer: a.Synthesizer,
		Recorder:    a.Recorder,
		Transcriber: a.Transcriber,
		Analyzer:    a.Analyzer,
	}
}

// EventSink collects published events.
type EventSink struct {
	Err error

	mu     sync.Mutex
	events []events.Event
}

func (s *EventSink) Publish(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.Err
}

// Events returns the events published for jobID, or all events when jobID
// is empty.
func (s *EventSink) Events(jobID string) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, event := range s.events {
		if jobID == "" || event.JobID == jobID {
			out = append(out, event)
		}
	}
	return out
}

// ErrInjected is a generic failure for adapter fakes.
var ErrInjected = errors.New("injected failure")

// Failing wraps ErrInjected with marker so the workflow classifies it.
func Failing(marker error, stageName string) error {
	return services.Wrap(marker, stageName, "fake", fmt.Sprintf("%s failed", stageName), ErrInjected)
}
