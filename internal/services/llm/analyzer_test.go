package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callqa/internal/logging"
	"callqa/internal/script"
	"callqa/internal/services"
	"callqa/internal/stage"
)

func mustScript(t *testing.T, raw string) script.Script {
	t.Helper()
	parsed, err := script.Parse(raw)
	if err != nil {
		t.Fatalf("parse script: %v", err)
	}
	return parsed
}

func analyzerFor(t *testing.T, handler http.HandlerFunc) *Analyzer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithRetryMaxAttempts(1),
		WithSleeper(func(time.Duration) {}),
	)
	return NewAnalyzer(client, logging.NewNop())
}

func TestAnalyzerScalesPercentScore(t *testing.T) {
	var prompt string
	analyzer := analyzerFor(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 2 {
			prompt = req.Messages[1].Content
		}
		_ = json.NewEncoder(w).Encode(messagePayload(`{"accuracy_score":92,"summary":"轉錄與腳本高度一致","key_differences":["語氣詞略有不同"],"suggestions":[],"reasoning":"內容一致"}`))
	})

	reference := mustScript(t, "客戶: 我想查詢帳單。\n客服: 好的，請提供您的帳號。")
	result, err := analyzer.Analyze(context.Background(), reference, stage.Transcript{Text: "我想查詢帳單 好的請提供您的帳號"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if math.Abs(result.AccuracyScore-0.92) > 1e-9 {
		t.Fatalf("expected score 0.92, got %v", result.AccuracyScore)
	}
	if result.Summary != "轉錄與腳本高度一致" {
		t.Fatalf("unexpected summary %q", result.Summary)
	}
	if len(result.KeyDifferences) != 1 || result.Suggestions == nil {
		t.Fatalf("unexpected lists %+v", result)
	}
	if strings.Contains(prompt, "客戶") || strings.Contains(prompt, "，") {
		t.Fatalf("prompt should be normalized, got %q", prompt)
	}
	if !strings.Contains(prompt, "我想查詢帳單") {
		t.Fatalf("prompt missing reference text: %q", prompt)
	}
}

func TestAnalyzerMalformedPayload(t *testing.T) {
	analyzer := analyzerFor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(messagePayload(`I think it went well`))
	})
	reference := mustScript(t, "Customer: hi\nAgent: hello")
	_, err := analyzer.Analyze(context.Background(), reference, stage.Transcript{Text: "hi hello"})
	if !errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected malformed output, got %v", err)
	}
}

func TestAnalyzerTransportFailureIsAnalysisError(t *testing.T) {
	analyzer := analyzerFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	})
	reference := mustScript(t, "Customer: hi\nAgent: hello")
	_, err := analyzer.Analyze(context.Background(), reference, stage.Transcript{Text: "hi hello"})
	if !errors.Is(err, services.ErrAnalysis) {
		t.Fatalf("expected analysis error, got %v", err)
	}
	if errors.Is(err, services.ErrMalformedOutput) {
		t.Fatal("transport failure must not be reported as malformed output")
	}
}

func TestAnalyzerRejectsEmptyTranscript(t *testing.T) {
	analyzer := analyzerFor(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("model should not be called for an empty transcript")
	})
	reference := mustScript(t, "Customer: hi\nAgent: hello")
	_, err := analyzer.Analyze(context.Background(), reference, stage.Transcript{Text: " 。 "})
	if !errors.Is(err, services.ErrAnalysis) {
		t.Fatalf("expected analysis error, got %v", err)
	}
}

func TestAnalyzerHealthCheck(t *testing.T) {
	analyzer := analyzerFor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(messagePayload(`{"ok":true}`))
	})
	if health := analyzer.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected ready, got %+v", health)
	}

	broken := analyzerFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	health := broken.HealthCheck(context.Background())
	if health.Ready || health.Name != "analyzer" || health.Detail == "" {
		t.Fatalf("expected unhealthy analyzer, got %+v", health)
	}
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantScore float64
		malformed bool
	}{
		{name: "fraction", content: `{"accuracy_score":0.75,"summary":"ok"}`, wantScore: 0.75},
		{name: "percent", content: `{"accuracy_score":85,"summary":"ok","key_differences":[],"suggestions":[]}`, wantScore: 0.85},
		{name: "string score", content: `{"accuracy_score":"60%","summary":"ok"}`, wantScore: 0.6},
		{name: "one", content: `{"accuracy_score":1,"summary":"ok"}`, wantScore: 1},
		{name: "fenced", content: "```json\n{\"accuracy_score\":50,\"summary\":\"ok\"}\n```", wantScore: 0.5},
		{name: "missing score", content: `{"summary":"ok"}`, malformed: true},
		{name: "missing summary", content: `{"accuracy_score":0.5}`, malformed: true},
		{name: "negative", content: `{"accuracy_score":-3,"summary":"ok"}`, malformed: true},
		{name: "over hundred", content: `{"accuracy_score":250,"summary":"ok"}`, malformed: true},
		{name: "not a number", content: `{"accuracy_score":"high","summary":"ok"}`, malformed: true},
		{name: "not json", content: `score: 80`, malformed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseAnalysis(tt.content)
			if tt.malformed {
				if !errors.Is(err, services.ErrMalformedOutput) {
					t.Fatalf("expected malformed output, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAnalysis: %v", err)
			}
			if math.Abs(result.AccuracyScore-tt.wantScore) > 1e-9 {
				t.Fatalf("expected score %v, got %v", tt.wantScore, result.AccuracyScore)
			}
			if result.KeyDifferences == nil || result.Suggestions == nil {
				t.Fatal("lists must be non-nil")
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "客戶: 您好，我想查詢帳單！", want: "您好我想查詢帳單"},
		{in: "Agent：Sure,  one moment.", want: "Sure one moment"},
		{in: "Note: keep this", want: "Note keep this"},
		{in: "customer: a\n\n agent: b ", want: "a\nb"},
		{in: "。！？", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
