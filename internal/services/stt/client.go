package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callqa/internal/logging"
	"callqa/internal/services"
	"callqa/internal/stage"
)

const (
	transcribeStage    = "transcribe"
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultHTTPTimeout = 120 * time.Second

	// MinAudioBytes and MaxAudioBytes bound what the transcription API accepts.
	MinAudioBytes = 1 << 10
	MaxAudioBytes = 25 << 20
)

// Source resolves a recording handle to its bytes.
type Source interface {
	Open(ctx context.Context, handle stage.RecordingHandle) ([]byte, error)
}

// Config captures the transcription API settings.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Language       string
	Prompt         string
	TimeoutSeconds int
}

// Client uploads recordings to an OpenAI-compatible transcription endpoint and
// implements stage.Transcriber.
type Client struct {
	cfg        Config
	source     Source
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "stt")
	}
}

// NewClient constructs a transcription client reading recordings from source.
func NewClient(cfg Config, source Source, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	client := &Client{
		cfg:        cfg,
		source:     source,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads the recording and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, handle stage.RecordingHandle) (stage.Transcript, error) {
	var empty stage.Transcript
	if c.cfg.APIKey == "" {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "request", "api key not configured", nil)
	}
	audio, err := c.source.Open(ctx, handle)
	if err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "load recording", handle.String(), err)
	}
	if err := checkSize(len(audio)); err != nil {
		return empty, err
	}

	body, contentType, err := c.multipartBody(handle, audio)
	if err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "encode upload", "", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "new request", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "request", "endpoint unreachable", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "read response", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(raw)), nil)
	}
	var parsed transcriptionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "decode response", snippet(raw), err)
	}
	if parsed.Error != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "request", parsed.Error.Message, nil)
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "decode response", "no speech recognized in recording", nil)
	}
	transcript := stage.Transcript{Text: text, Language: parsed.Language}
	for _, seg := range parsed.Segments {
		transcript.Segments = append(transcript.Segments, stage.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	logging.WithContext(ctx, c.logger).Info("transcription complete",
		logging.String("recording", handle.String()),
		logging.Int("audio_bytes", len(audio)),
		logging.Int("chars", len([]rune(text))),
		logging.Duration("elapsed", time.Since(started)),
	)
	return transcript, nil
}

func checkSize(size int) error {
	switch {
	case size > MaxAudioBytes:
		return services.Wrap(services.ErrTranscription, transcribeStage, "validate recording",
			fmt.Sprintf("recording is %.1f MiB, above the 25 MiB limit", float64(size)/(1<<20)), nil)
	case size < MinAudioBytes:
		return services.Wrap(services.ErrTranscription, transcribeStage, "validate recording",
			fmt.Sprintf("recording is %d bytes, too small to contain speech", size), nil)
	}
	return nil
}

func (c *Client) responseFormat() string {
	if strings.HasPrefix(c.cfg.Model, "whisper") {
		return "verbose_json"
	}
	return "json"
}

func (c *Client) multipartBody(handle stage.RecordingHandle, audio []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	filename := handle.Key
	if filename == "" {
		filename = "recording.wav"
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	fields := []struct{ name, value string }{
		{"model", c.cfg.Model},
		{"language", c.cfg.Language},
		{"prompt", c.cfg.Prompt},
		{"response_format", c.responseFormat()},
		{"temperature", "0"},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if err := writer.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// HealthCheck verifies the key is accepted and the configured model is listed.
func (c *Client) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcriber"
	if c.cfg.APIKey == "" {
		return stage.Unhealthy(name, "api key not configured")
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "models")
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("endpoint unreachable: %v", err))
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return stage.Unhealthy(name, fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(raw)))
	}
	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &listing); err != nil {
		return stage.Unhealthy(name, "unexpected models response")
	}
	for _, model := range listing.Data {
		if model.ID == c.cfg.Model {
			return stage.Healthy(name)
		}
	}
	return stage.Unhealthy(name, fmt.Sprintf("model %q not available", c.cfg.Model))
}

func snippet(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	if text == "" {
		return "<empty>"
	}
	if runes := []rune(text); len(runes) > 160 {
		return string(runes[:160]) + "..."
	}
	return text
}
