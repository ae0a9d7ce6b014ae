package daemonrun

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"

	"callqa/internal/config"
	"callqa/internal/logging"
	"callqa/internal/recording"
	"callqa/internal/services/llm"
	"callqa/internal/services/stt"
	"callqa/internal/services/tts"
	"callqa/internal/services/whisperx"
	"callqa/internal/stage"
)

// Broker holds the NATS connection shared by the object store backend and the
// event publisher. Both fields are nil when nothing needs NATS.
type Broker struct {
	Conn      *nats.Conn
	JetStream nats.JetStreamContext
}

// Close drains the connection.
func (b *Broker) Close() {
	if b == nil || b.Conn == nil {
		return
	}
	if err := b.Conn.Drain(); err != nil {
		b.Conn.Close()
	}
}

// NeedsBroker reports whether the configuration uses NATS at all.
func NeedsBroker(cfg *config.Config) bool {
	return cfg.Storage.Backend == "nats" || cfg.NATS.EventsEnabled
}

// ConnectBroker dials NATS when the configuration needs it.
func ConnectBroker(cfg *config.Config, logger *slog.Logger) (*Broker, error) {
	if !NeedsBroker(cfg) {
		return &Broker{}, nil
	}
	log := logging.NewComponentLogger(logger, "nats")
	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name("callqa"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logging.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.NATS.URL, err)
	}
	broker := &Broker{Conn: conn}
	if cfg.Storage.Backend == "nats" {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("jetstream context: %w", err)
		}
		broker.JetStream = js
	}
	log.Info("nats connected", logging.String("url", conn.ConnectedUrl()))
	return broker, nil
}

// BuildAdapters constructs the four stage adapters from configuration. The
// recorder is returned separately because the job service deletes
// recordings through it.
func BuildAdapters(cfg *config.Config, js nats.JetStreamContext, logger *slog.Logger) (stage.Set, *recording.Recorder, error) {
	backend, err := recording.NewBackendFromConfig(cfg, js)
	if err != nil {
		return stage.Set{}, nil, err
	}
	recorder := recording.NewRecorder(backend, cfg.PauseBetweenTurns(), logger)

	synthesizer := tts.NewClient(tts.Config{
		BaseURL:        cfg.TTS.BaseURL,
		Language:       cfg.TTS.Language,
		Temperature:    cfg.TTS.Temperature,
		CustomerVoice:  cfg.TTS.CustomerVoice,
		AgentVoice:     cfg.TTS.AgentVoice,
		TimeoutSeconds: cfg.TTS.TimeoutSeconds,
	}, tts.WithLogger(logger))

	transcriber, err := buildTranscriber(cfg, recorder, logger)
	if err != nil {
		return stage.Set{}, nil, err
	}

	analyzer := llm.NewAnalyzer(llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}), logger)

	return stage.Set{
		Synthesizer: synthesizer,
		Recorder:    recorder,
		Transcriber: transcriber,
		Analyzer:    analyzer,
	}, recorder, nil
}

func buildTranscriber(cfg *config.Config, source *recording.Recorder, logger *slog.Logger) (stage.Transcriber, error) {
	switch strings.ToLower(cfg.STT.Provider) {
	case "whisperx":
		if err := os.MkdirAll(cfg.STT.WhisperXCacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("create whisperx work dir: %w", err)
		}
		return whisperx.NewService(whisperx.Config{
			Model:       cfg.STT.WhisperXModel,
			CUDAEnabled: cfg.STT.WhisperXCUDAEnabled,
			Language:    cfg.STT.Language,
			Prompt:      cfg.STT.Prompt,
			WorkDir:     cfg.STT.WhisperXCacheDir,
		}, source, logger), nil
	default:
		return stt.NewClient(stt.Config{
			BaseURL:        cfg.STT.BaseURL,
			APIKey:         cfg.STT.APIKey,
			Model:          cfg.STT.Model,
			Language:       cfg.STT.Language,
			Prompt:         cfg.STT.Prompt,
			TimeoutSeconds: cfg.STT.TimeoutSeconds,
		}, source, stt.WithLogger(logger)), nil
	}
}
