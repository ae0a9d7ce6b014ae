package config

const (
	defaultConfigPath             = "~/.config/callqa/config.toml"
	defaultDataDir                = "~/.local/share/callqa"
	defaultRecordingsDir          = "~/.local/share/callqa/recordings"
	defaultLogDir                 = "~/.local/share/callqa/logs"
	defaultWhisperXCacheDir       = "~/.local/share/callqa/cache/whisperx"
	defaultAPIBind                = "127.0.0.1:7491"
	defaultTTSBaseURL             = "http://127.0.0.1:8000"
	defaultTTSLanguage            = "zh-cn"
	defaultTTSTemperature         = 0.7
	defaultTTSTimeoutSeconds      = 60
	defaultSTTProvider            = "openai"
	defaultSTTBaseURL             = "https://api.openai.com/v1"
	defaultSTTModel               = "whisper-1"
	defaultSTTLanguage            = "zh"
	defaultSTTPrompt              = "以下是客戶與客服之間的電話對話。"
	defaultSTTTimeoutSeconds      = 120
	defaultWhisperXModel          = "large-v3"
	defaultLLMBaseURL             = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel               = "gpt-4o"
	defaultLLMReferer             = "https://github.com/callqa/callqa"
	defaultLLMTitle               = "callqa analyzer"
	defaultLLMTimeoutSeconds      = 60
	defaultStorageBackend         = "filesystem"
	defaultPauseMillis            = 300
	defaultBucket                 = "callqa-recordings"
	defaultNATSURL                = "nats://127.0.0.1:4222"
	defaultEventsSubject          = "callqa.jobs"
	defaultProbeTimeoutSeconds    = 5
	defaultShutdownTimeoutSeconds = 30
	defaultCleanupDays            = 7
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			RecordingsDir: defaultRecordingsDir,
			LogDir:        defaultLogDir,
			APIBind:       defaultAPIBind,
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			Language:       defaultTTSLanguage,
			Temperature:    defaultTTSTemperature,
			TimeoutSeconds: defaultTTSTimeoutSeconds,
		},
		STT: STT{
			Provider:         defaultSTTProvider,
			BaseURL:          defaultSTTBaseURL,
			Model:            defaultSTTModel,
			Language:         defaultSTTLanguage,
			Prompt:           defaultSTTPrompt,
			TimeoutSeconds:   defaultSTTTimeoutSeconds,
			WhisperXModel:    defaultWhisperXModel,
			WhisperXCacheDir: defaultWhisperXCacheDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Storage: Storage{
			Backend:     defaultStorageBackend,
			PauseMillis: defaultPauseMillis,
			Bucket:      defaultBucket,
		},
		NATS: NATS{
			URL:           defaultNATSURL,
			EventsSubject: defaultEventsSubject,
		},
		Workflow: Workflow{
			ProbeTimeoutSeconds:    defaultProbeTimeoutSeconds,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
			CleanupDays:            defaultCleanupDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
