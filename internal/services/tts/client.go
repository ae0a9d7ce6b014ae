package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callqa/internal/logging"
	"callqa/internal/recording"
	"callqa/internal/script"
	"callqa/internal/services"
	"callqa/internal/stage"
)

const (
	synthesizeStage    = "synthesize"
	speechPath         = "/v1/generate/speech"
	healthPath         = "/health"
	defaultHTTPTimeout = 60 * time.Second
	maxAudioBytes      = 64 << 20
)

// Config captures the synthesis engine settings.
type Config struct {
	BaseURL        string
	Language       string
	Temperature    float64
	CustomerVoice  string
	AgentVoice     string
	TimeoutSeconds int
}

// Client talks to a voice-cloning TTS engine over HTTP and implements
// stage.Synthesizer.
type Client struct {
	cfg        Config
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
		c.logger = logging.NewComponentLogger(logger, "tts")
	}
}

// NewClient constructs a synthesis client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Language = strings.TrimSpace(cfg.Language)
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type speechRequest struct {
	Text           string  `json:"text"`
	SpeakerRefPath string  `json:"speaker_ref_path"`
	Language       string  `json:"language"`
	Temperature    float64 `json:"temperature"`
}

// VoiceFor returns the reference voice configured for speaker.
func (c *Client) VoiceFor(speaker script.Speaker) (string, bool) {
	var voice string
	switch speaker {
	case script.SpeakerCustomer:
		voice = c.cfg.CustomerVoice
	case script.SpeakerAgent:
		voice = c.cfg.AgentVoice
	}
	voice = strings.TrimSpace(voice)
	return voice, voice != ""
}

// Synthesize renders one turn with the speaker's reference voice.
func (c *Client) Synthesize(ctx context.Context, turn script.Turn) (stage.AudioClip, error) {
	text := strings.TrimSpace(turn.Text)
	if text == "" {
		return stage.AudioClip{}, services.Wrap(services.ErrSynthesis, synthesizeStage, "request", "turn text is empty", nil)
	}
	voice, ok := c.VoiceFor(turn.Speaker)
	if !ok {
		return stage.AudioClip{}, services.Wrap(services.ErrSynthesis, synthesizeStage, "request", fmt.Sprintf("no reference voice configured for %s", turn.Speaker), nil)
	}
	body, err := json.Marshal(speechRequest{
		Text:           text,
		SpeakerRefPath: voice,
		Language:       c.cfg.Language,
		Temperature:    c.cfg.Temperature,
	})
	if err != nil {
		return stage.AudioClip{}, services.Wrap(services.ErrSynthesis, synthesizeStage, "encode request", "", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, speechPath)
	if err != nil {
		return stage.AudioClip{}, services.Wrap(services.ErrConfiguration, synthesizeStage, "build url", c.cfg.BaseURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return stage.AudioClip{}, services.Wrap(services.ErrSynthesis, synthesizeStage, "new request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return stage.AudioClip{}, services.Wrap(services.ErrSynthesis, synthesizeStage, "request", "engine unreachable", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return stage.AudioClip{}, services.Wrap(services.ErrSynthesis, synthesizeStage, "read response", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stage.AudioClip{}, services.Wrap(services.ErrSynthesis, synthesizeStage, "request",
			fmt.Sprintf("engine returned http %d: %s", resp.StatusCode, snippet(payload)), nil)
	}
	wav, err := recording.DecodeWAV(payload)
	if err != nil {
		return stage.AudioClip{}, services.Wrap(services.ErrSynthesis, synthesizeStage, "decode audio", "engine returned invalid audio", err)
	}
	clip := stage.AudioClip{
		Speaker:       turn.Speaker,
		Data:          payload,
		Format:        "wav",
		SampleRate:    wav.Format.SampleRate,
		Channels:      wav.Format.Channels,
		BitsPerSample: wav.Format.BitsPerSample,
	}
	logging.WithContext(ctx, c.logger).Debug("turn synthesized",
		logging.String("speaker", string(turn.Speaker)),
		logging.Int("chars", len([]rune(text))),
		logging.Duration("audio", wav.Duration()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return clip, nil
}

// HealthCheck reports whether the engine is up and its model loaded.
func (c *Client) HealthCheck(ctx context.Context) stage.Health {
	const name = "synthesizer"
	endpoint, err := url.JoinPath(c.cfg.BaseURL, healthPath)
	if err != nil || c.cfg.BaseURL == "" {
		return stage.Unhealthy(name, "engine base_url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("engine unreachable: %v", err))
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return stage.Unhealthy(name, fmt.Sprintf("engine returned http %d: %s", resp.StatusCode, snippet(body)))
	}
	var status struct {
		Status      string `json:"status"`
		ModelLoaded *bool  `json:"model_loaded"`
	}
	if err := json.Unmarshal(body, &status); err == nil && status.ModelLoaded != nil && !*status.ModelLoaded {
		return stage.Unhealthy(name, "engine model not loaded")
	}
	return stage.Healthy(name)
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
