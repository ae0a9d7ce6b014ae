package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"callqa/internal/logging"
	"callqa/internal/script"
	"callqa/internal/services"
	"callqa/internal/stage"
)

const analyzeStage = "analyze"

// Analyzer implements stage.Analyzer on top of a chat completion client.
type Analyzer struct {
	client *Client
	logger *slog.Logger
}

// NewAnalyzer wraps client as a stage analyzer.
func NewAnalyzer(client *Client, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		client: client,
		logger: logging.NewComponentLogger(logger, "llm"),
	}
}

// Analyze asks the model to compare the reference script with the transcript.
// Transport failures are tagged services.ErrAnalysis; payloads that cannot be
// decoded or fail validation are tagged services.ErrMalformedOutput.
func (a *Analyzer) Analyze(ctx context.Context, reference script.Script, transcript stage.Transcript) (stage.AnalysisResult, error) {
	var empty stage.AnalysisResult
	normalizedReference := NormalizeText(reference.Utterances())
	normalizedTranscript := NormalizeText(transcript.Text)
	if normalizedReference == "" {
		return empty, services.Wrap(services.ErrAnalysis, analyzeStage, "prepare", "reference script is empty", nil)
	}
	if normalizedTranscript == "" {
		return empty, services.Wrap(services.ErrAnalysis, analyzeStage, "prepare", "transcript is empty", nil)
	}

	logger := logging.WithContext(ctx, a.logger)
	logger.Debug("requesting analysis",
		logging.String("model", a.client.Model()),
		logging.Int("reference_chars", len([]rune(normalizedReference))),
		logging.Int("transcript_chars", len([]rune(normalizedTranscript))),
	)

	content, err := a.client.CompleteJSON(ctx, AnalysisSystemPrompt, BuildAnalysisPrompt(normalizedReference, normalizedTranscript))
	if err != nil {
		return empty, services.Wrap(services.ErrAnalysis, analyzeStage, "complete", "model request failed", err)
	}

	result, err := ParseAnalysis(content)
	if err != nil {
		logging.WarnWithContext(logger, "analysis payload rejected", "analysis_malformed",
			logging.Error(err),
			logging.String("payload_snippet", summarizePayloadSnippet(content)),
			logging.String(logging.FieldImpact, "analysis attempt discarded"),
		)
		return empty, err
	}
	logger.Info("analysis complete",
		logging.Float64("accuracy_score", result.AccuracyScore),
		logging.Int("key_differences", len(result.KeyDifferences)),
	)
	return result, nil
}

// HealthCheck pings the model endpoint.
func (a *Analyzer) HealthCheck(ctx context.Context) stage.Health {
	const name = "analyzer"
	if a == nil || a.client == nil {
		return stage.Unhealthy(name, "analyzer not configured")
	}
	if err := a.client.Ping(ctx); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

type analysisPayload struct {
	AccuracyScore  *score   `json:"accuracy_score"`
	Summary        string   `json:"summary"`
	KeyDifferences []string `json:"key_differences"`
	Suggestions    []string `json:"suggestions"`
	Reasoning      string   `json:"reasoning"`
}

// score accepts a JSON number or a numeric string.
type score float64

func (s *score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		data = []byte(strings.TrimSuffix(strings.TrimSpace(text), "%"))
	}
	value, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("accuracy_score %q is not a number", string(data))
	}
	*s = score(value)
	return nil
}

// ParseAnalysis decodes and validates a model payload. Scores reported on a
// 0-100 scale are rescaled to [0,1]. Absent lists become empty lists.
func ParseAnalysis(content string) (stage.AnalysisResult, error) {
	var payload analysisPayload
	if err := DecodeJSON(content, &payload); err != nil {
		return stage.AnalysisResult{}, services.Wrap(services.ErrMalformedOutput, analyzeStage, "decode", "invalid JSON payload", err)
	}
	if payload.AccuracyScore == nil {
		return stage.AnalysisResult{}, services.Wrap(services.ErrMalformedOutput, analyzeStage, "decode", "accuracy_score missing", nil)
	}
	value := float64(*payload.AccuracyScore)
	if value > 1 && value <= 100 {
		value /= 100
	}
	result := stage.AnalysisResult{
		AccuracyScore:  value,
		Summary:        strings.TrimSpace(payload.Summary),
		KeyDifferences: cleanList(payload.KeyDifferences),
		Suggestions:    cleanList(payload.Suggestions),
		Reasoning:      strings.TrimSpace(payload.Reasoning),
	}
	if err := result.Validate(); err != nil {
		return stage.AnalysisResult{}, err
	}
	return result, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
