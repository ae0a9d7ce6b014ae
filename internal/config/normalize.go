package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTTS(); err != nil {
		return err
	}
	if err := c.normalizeSTT(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeStorage()
	c.normalizeNATS()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RecordingsDir) == "" {
		c.Paths.RecordingsDir = defaultRecordingsDir
	}
	if c.Paths.RecordingsDir, err = expandPath(c.Paths.RecordingsDir); err != nil {
		return fmt.Errorf("paths.recordings_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CALLQA_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeTTS() error {
	var err error
	c.TTS.BaseURL = strings.TrimRight(strings.TrimSpace(c.TTS.BaseURL), "/")
	if c.TTS.BaseURL == "" {
		c.TTS.BaseURL = defaultTTSBaseURL
	}
	c.TTS.Language = strings.ToLower(strings.TrimSpace(c.TTS.Language))
	if c.TTS.Language == "" {
		c.TTS.Language = defaultTTSLanguage
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
	if c.TTS.CustomerVoice, err = expandPath(strings.TrimSpace(c.TTS.CustomerVoice)); err != nil {
		return fmt.Errorf("tts.customer_voice: %w", err)
	}
	if c.TTS.AgentVoice, err = expandPath(strings.TrimSpace(c.TTS.AgentVoice)); err != nil {
		return fmt.Errorf("tts.agent_voice: %w", err)
	}
	return nil
}

func (c *Config) normalizeSTT() error {
	c.STT.Provider = strings.ToLower(strings.TrimSpace(c.STT.Provider))
	if c.STT.Provider == "" {
		c.STT.Provider = defaultSTTProvider
	}
	c.STT.BaseURL = strings.TrimRight(strings.TrimSpace(c.STT.BaseURL), "/")
	if c.STT.BaseURL == "" {
		c.STT.BaseURL = defaultSTTBaseURL
	}
	c.STT.Model = strings.TrimSpace(c.STT.Model)
	if c.STT.Model == "" {
		c.STT.Model = defaultSTTModel
	}
	c.STT.Language = strings.TrimSpace(c.STT.Language)
	c.STT.Prompt = strings.TrimSpace(c.STT.Prompt)
	if c.STT.TimeoutSeconds <= 0 {
		c.STT.TimeoutSeconds = defaultSTTTimeoutSeconds
	}
	c.STT.APIKey = strings.TrimSpace(c.STT.APIKey)
	if c.STT.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.STT.APIKey = strings.TrimSpace(value)
		}
	}
	c.STT.WhisperXModel = strings.TrimSpace(c.STT.WhisperXModel)
	if c.STT.WhisperXModel == "" {
		c.STT.WhisperXModel = defaultWhisperXModel
	}
	if strings.TrimSpace(c.STT.WhisperXCacheDir) == "" {
		c.STT.WhisperXCacheDir = defaultWhisperXCacheDir
	}
	var err error
	if c.STT.WhisperXCacheDir, err = expandPath(c.STT.WhisperXCacheDir); err != nil {
		return fmt.Errorf("stt.whisperx_cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	if c.Storage.PauseMillis < 0 {
		c.Storage.PauseMillis = 0
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultBucket
	}
}

func (c *Config) normalizeNATS() {
	c.NATS.URL = strings.TrimSpace(c.NATS.URL)
	if c.NATS.URL == "" {
		c.NATS.URL = defaultNATSURL
	}
	c.NATS.EventsSubject = strings.TrimSpace(c.NATS.EventsSubject)
	if c.NATS.EventsSubject == "" {
		c.NATS.EventsSubject = defaultEventsSubject
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.ProbeTimeoutSeconds <= 0 {
		c.Workflow.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
	if c.Workflow.ShutdownTimeoutSeconds <= 0 {
		c.Workflow.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	if c.Workflow.CleanupDays <= 0 {
		c.Workflow.CleanupDays = defaultCleanupDays
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
