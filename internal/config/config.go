package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	RecordingsDir string `toml:"recordings_dir"`
	LogDir        string `toml:"log_dir"`
	APIBind       string `toml:"api_bind"`
	APIToken      string `toml:"api_token"`
}

// TTS contains configuration for the speech synthesis engine.
type TTS struct {
	BaseURL        string  `toml:"base_url"`
	Language       string  `toml:"language"`
	Temperature    float64 `toml:"temperature"`
	CustomerVoice  string  `toml:"customer_voice"`
	AgentVoice     string  `toml:"agent_voice"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// STT contains configuration for transcription.
type STT struct {
	Provider            string `toml:"provider"`
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	Model               string `toml:"model"`
	Language            string `toml:"language"`
	Prompt              string `toml:"prompt"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	WhisperXModel       string `toml:"whisperx_model"`
	WhisperXCUDAEnabled bool   `toml:"whisperx_cuda_enabled"`
	WhisperXCacheDir    string `toml:"whisperx_cache_dir"`
}

// LLM contains connection settings for the analysis model.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage selects where merged recordings are written.
type Storage struct {
	Backend     string `toml:"backend"`
	PauseMillis int    `toml:"pause_millis"`
	Bucket      string `toml:"bucket"`
}

// NATS contains the broker connection used by the object store backend and
// job event publishing.
type NATS struct {
	URL           string `toml:"url"`
	EventsEnabled bool   `toml:"events_enabled"`
	EventsSubject string `toml:"events_subject"`
}

// Workflow contains orchestration timing settings.
type Workflow struct {
	ProbeTimeoutSeconds    int `toml:"probe_timeout_seconds"`
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
	CleanupDays            int `toml:"cleanup_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for callqa.
//
// Configuration sections by subsystem:
//   - Paths: data, recording and log directories plus the API bind address
//   - TTS: synthesis engine endpoint and per-role reference voices
//   - STT: transcription provider (openai or whisperx)
//   - LLM: analysis model connection
//   - Storage: recording backend (filesystem or nats) and turn pause
//   - NATS: broker URL and job event subject
//   - Workflow: readiness probe and shutdown timeouts, cleanup window
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	TTS      TTS      `toml:"tts"`
	STT      STT      `toml:"stt"`
	LLM      LLM      `toml:"llm"`
	Storage  Storage  `toml:"storage"`
	NATS     NATS     `toml:"nats"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("callqa.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.RecordingsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "callqa.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "callqa.lock")
}

// PIDPath returns the file the daemon records its process id in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "callqa.pid")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "callqa.log")
}

// PauseBetweenTurns returns the silence inserted between merged clips.
func (c *Config) PauseBetweenTurns() time.Duration {
	return time.Duration(c.Storage.PauseMillis) * time.Millisecond
}

// ProbeTimeout returns the per-probe readiness timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Workflow.ProbeTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds how long the daemon waits for in-flight jobs.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Workflow.ShutdownTimeoutSeconds) * time.Second
}

// VoiceFiles returns the configured reference voice paths keyed by role.
func (c *Config) VoiceFiles() map[string]string {
	return map[string]string{
		"customer": c.TTS.CustomerVoice,
		"agent":    c.TTS.AgentVoice,
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
