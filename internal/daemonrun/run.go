package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"callqa/internal/api"
	"callqa/internal/config"
	"callqa/internal/daemon"
	"callqa/internal/events"
	"callqa/internal/jobs"
	"callqa/internal/logging"
	"callqa/internal/preflight"
	"callqa/internal/services/whisperx"
	"callqa/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the callqa daemon and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("callqa-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update callqa.log link: %v\n", err)
	}
	logDependencySnapshot(logger, cfg)

	broker, err := ConnectBroker(cfg, logger)
	if err != nil {
		logger.Error("connect nats", logging.Error(err))
		return err
	}
	defer broker.Close()

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}

	adapters, recorder, err := BuildAdapters(cfg, broker.JetStream, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("build adapters: %w", err)
	}

	checker := preflight.ForPipeline(cfg, adapters)
	manager := workflow.NewManager(cfg, store, adapters, logger,
		workflow.WithReadiness(checker),
		workflow.WithPublisher(events.NewPublisher(cfg, broker.Conn)),
	)
	service := api.NewJobService(store, manager, logger,
		api.WithRecordings(recorder),
		api.WithProbes(checker),
	)

	d, err := daemon.New(cfg, store, manager, service, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file and job database access"),
			logging.String(logging.FieldImpact, "no jobs will be accepted"),
		)
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("callqa daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "callqa.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("tts_base_url", cfg.TTS.BaseURL),
		logging.Bool("customer_voice_set", strings.TrimSpace(cfg.TTS.CustomerVoice) != ""),
		logging.Bool("agent_voice_set", strings.TrimSpace(cfg.TTS.AgentVoice) != ""),
		logging.String("stt_provider", cfg.STT.Provider),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("llm_model", cfg.LLM.Model),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.Bool("events_enabled", cfg.NATS.EventsEnabled),
	}
	if cfg.STT.Provider == "whisperx" {
		attrs = append(attrs,
			logging.Bool("uvx_available", binaryAvailable(whisperx.UVXCommand)),
			logging.Bool("ffmpeg_available", binaryAvailable(whisperx.FFmpegCommand)),
			logging.Bool("whisperx_cuda", cfg.STT.WhisperXCUDAEnabled),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
