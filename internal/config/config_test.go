package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"callqa/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("CALLQA_API_TOKEN", "secret")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "callqa")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "callqa.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected api token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.LLM.APIKey != "test-key" || cfg.STT.APIKey != "test-key" {
		t.Fatalf("expected OpenAI key from env for llm and stt, got %q / %q", cfg.LLM.APIKey, cfg.STT.APIKey)
	}
	if cfg.STT.Provider != "openai" || cfg.STT.Model != "whisper-1" {
		t.Fatalf("unexpected stt defaults: %+v", cfg.STT)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("unexpected llm model %q", cfg.LLM.Model)
	}
	if cfg.PauseBetweenTurns() != 300*time.Millisecond {
		t.Fatalf("unexpected pause %s", cfg.PauseBetweenTurns())
	}
	if cfg.Storage.Backend != "filesystem" {
		t.Fatalf("unexpected storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Workflow.CleanupDays != 7 {
		t.Fatalf("unexpected cleanup days %d", cfg.Workflow.CleanupDays)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.RecordingsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "callqa.toml")

	type payload struct {
		STT struct {
			Provider string `toml:"provider"`
		} `toml:"stt"`
		LLM struct {
			APIKey string `toml:"api_key"`
			Model  string `toml:"model"`
		} `toml:"llm"`
		Storage struct {
			Backend     string `toml:"backend"`
			PauseMillis int    `toml:"pause_millis"`
		} `toml:"storage"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.STT.Provider = " WhisperX "
	custom.LLM.APIKey = "abc123"
	custom.LLM.Model = "gpt-4o-mini"
	custom.Storage.Backend = "NATS"
	custom.Storage.PauseMillis = 500
	custom.Logging.Format = "yaml"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.STT.Provider != "whisperx" {
		t.Fatalf("expected normalized provider, got %q", cfg.STT.Provider)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("expected model override, got %q", cfg.LLM.Model)
	}
	if cfg.Storage.Backend != "nats" {
		t.Fatalf("expected nats backend, got %q", cfg.Storage.Backend)
	}
	if cfg.PauseBetweenTurns() != 500*time.Millisecond {
		t.Fatalf("expected 500ms pause, got %s", cfg.PauseBetweenTurns())
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected unknown log format to fall back to console, got %q", cfg.Logging.Format)
	}
}

func TestLoadRequiresLLMKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HOME", t.TempDir())
	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error without llm api key")
	}
	if !strings.Contains(err.Error(), "llm.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_openai_api_key_here") {
		t.Fatalf("sample config missing placeholder key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "callqa") {
		t.Fatalf("expected data dir to contain callqa, got %q", cfg.Paths.DataDir)
	}
	if cfg.Storage.PauseMillis != 300 {
		t.Fatalf("expected sample pause 300, got %d", cfg.Storage.PauseMillis)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.LLM.APIKey = "key"
		cfg.STT.APIKey = "key"
		return cfg
	}
	if cfg := valid(); cfg.Validate() != nil {
		t.Fatalf("expected defaults with keys to validate: %v", cfg.Validate())
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing stt key", func(c *config.Config) { c.STT.APIKey = "" }},
		{"unknown provider", func(c *config.Config) { c.STT.Provider = "vosk" }},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "s3" }},
		{"nats backend without bucket", func(c *config.Config) { c.Storage.Backend = "nats"; c.Storage.Bucket = "" }},
		{"bad nats url", func(c *config.Config) { c.NATS.EventsEnabled = true; c.NATS.URL = "http://localhost" }},
		{"temperature out of range", func(c *config.Config) { c.TTS.Temperature = 3 }},
		{"zero probe timeout", func(c *config.Config) { c.Workflow.ProbeTimeoutSeconds = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := valid()
	cfg.STT.Provider = "whisperx"
	cfg.STT.APIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("whisperx should not need an api key: %v", err)
	}
}
