package stage

import (
	"errors"
	"math"
	"testing"
	"time"

	"callqa/internal/services"
)

func validResult() AnalysisResult {
	return AnalysisResult{
		AccuracyScore:  0.92,
		Summary:        "Transcript matches the script closely.",
		KeyDifferences: []string{},
		Suggestions:    []string{"none"},
	}
}

func TestAnalysisResultValidate(t *testing.T) {
	if err := validResult().Validate(); err != nil {
		t.Fatalf("expected valid result, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*AnalysisResult)
	}{
		{"negative score", func(r *AnalysisResult) { r.AccuracyScore = -0.1 }},
		{"score above one", func(r *AnalysisResult) { r.AccuracyScore = 1.01 }},
		{"nan score", func(r *AnalysisResult) { r.AccuracyScore = math.NaN() }},
		{"infinite score", func(r *AnalysisResult) { r.AccuracyScore = math.Inf(1) }},
		{"blank summary", func(r *AnalysisResult) { r.Summary = "  " }},
		{"nil differences", func(r *AnalysisResult) { r.KeyDifferences = nil }},
		{"nil suggestions", func(r *AnalysisResult) { r.Suggestions = nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := validResult()
			tc.mutate(&result)
			err := result.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, services.ErrMalformedOutput) {
				t.Fatalf("expected ErrMalformedOutput, got %v", err)
			}
		})
	}
}

func TestAnalysisResultBoundaryScores(t *testing.T) {
	for _, score := range []float64{0, 1} {
		result := validResult()
		result.AccuracyScore = score
		if err := result.Validate(); err != nil {
			t.Fatalf("score %v should be valid: %v", score, err)
		}
	}
}

func TestAudioClipDuration(t *testing.T) {
	clip := AudioClip{Data: make([]byte, 32000), SampleRate: 16000, Channels: 1, BitsPerSample: 16}
	if got := clip.Duration(); got != time.Second {
		t.Fatalf("expected 1s, got %s", got)
	}
	if (AudioClip{}).Duration() != 0 {
		t.Fatal("expected zero duration for empty format")
	}
}

func TestRecordingHandleString(t *testing.T) {
	h := RecordingHandle{Key: "job.wav", Backend: "nats"}
	if h.String() != "nats://job.wav" {
		t.Fatalf("unexpected handle string %q", h.String())
	}
	if (RecordingHandle{Key: "x"}).String() != "x" {
		t.Fatal("expected bare key without backend")
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("tts"); !h.Ready || h.Name != "tts" {
		t.Fatalf("unexpected healthy record %+v", h)
	}
	if h := Unhealthy("stt", "down"); h.Ready || h.Detail != "down" {
		t.Fatalf("unexpected unhealthy record %+v", h)
	}
}
