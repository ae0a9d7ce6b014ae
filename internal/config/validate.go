package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateSTT(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"workflow.probe_timeout_seconds":    c.Workflow.ProbeTimeoutSeconds,
		"workflow.shutdown_timeout_seconds": c.Workflow.ShutdownTimeoutSeconds,
		"workflow.cleanup_days":             c.Workflow.CleanupDays,
	})
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("llm.api_key is required. Set OPENAI_API_KEY env var or edit %s (create with 'callqa config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateSTT() error {
	switch c.STT.Provider {
	case "openai":
		if c.STT.APIKey == "" {
			return errors.New("stt.api_key must be set when stt.provider is openai (or set OPENAI_API_KEY)")
		}
	case "whisperx":
		if strings.TrimSpace(c.STT.WhisperXModel) == "" {
			return errors.New("stt.whisperx_model must be set when stt.provider is whisperx")
		}
	default:
		return fmt.Errorf("stt.provider %q is not supported (use openai or whisperx)", c.STT.Provider)
	}
	return nil
}

func (c *Config) validateTTS() error {
	if c.TTS.Temperature < 0 || c.TTS.Temperature > 2 {
		return errors.New("tts.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "filesystem", "nats":
	default:
		return fmt.Errorf("storage.backend %q is not supported (use filesystem or nats)", c.Storage.Backend)
	}
	if c.Storage.Backend == "nats" && c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set when storage.backend is nats")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if c.NATS.EventsEnabled || c.Storage.Backend == "nats" {
		if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
			return fmt.Errorf("nats.url %q must start with nats:// or tls://", c.NATS.URL)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
