package testsupport

import (
	"path/filepath"
	"testing"

	"callqa/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.LLM.APIKey = "test"
	cfgVal.STT.APIKey = "test"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.STT.WhisperXCacheDir = filepath.Join(base, "cache", "whisperx")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithVoiceFiles writes placeholder reference voices and points the TTS
// section at them.
func WithVoiceFiles() ConfigOption {
	return func(b *configBuilder) {
		voices := filepath.Join(b.baseDir, "voices")
		b.cfg.TTS.CustomerVoice = filepath.Join(voices, "customer.wav")
		b.cfg.TTS.AgentVoice = filepath.Join(voices, "agent.wav")
		WriteFile(b.t, b.cfg.TTS.CustomerVoice, 2048)
		WriteFile(b.t, b.cfg.TTS.AgentVoice, 2048)
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithPauseMillis overrides the silence inserted between turns.
func WithPauseMillis(ms int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.PauseMillis = ms
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
