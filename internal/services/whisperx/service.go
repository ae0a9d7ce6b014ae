package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"callqa/internal/deps"
	"callqa/internal/logging"
	"callqa/internal/services"
	"callqa/internal/stage"
)

const transcribeStage = "transcribe"

// Source resolves a recording handle to its bytes.
type Source interface {
	Open(ctx context.Context, handle stage.RecordingHandle) ([]byte, error)
}

// Service transcribes recordings locally by invoking WhisperX through uvx.
// It implements stage.Transcriber.
type Service struct {
	cfg           Config
	source        Source
	ffmpegBinary  string
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a WhisperX transcriber reading recordings from source.
func NewService(cfg Config, source Source, logger *slog.Logger) *Service {
	return &Service{
		cfg:          cfg,
		source:       source,
		ffmpegBinary: FFmpegCommand,
		logger:       logging.NewComponentLogger(logger, "whisperx"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Requirements lists the binaries a transcription run shells out to.
func (s *Service) Requirements() []deps.Requirement {
	return []deps.Requirement{
		{Name: "uvx", Command: UVXCommand, Description: "Runs WhisperX"},
		{Name: "ffmpeg", Command: s.ffmpegBinary, Description: "Resamples recordings for WhisperX"},
	}
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Transcribe fetches the recording, resamples it and runs WhisperX on it.
func (s *Service) Transcribe(ctx context.Context, handle stage.RecordingHandle) (stage.Transcript, error) {
	var empty stage.Transcript
	audio, err := s.source.Open(ctx, handle)
	if err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "load recording", handle.String(), err)
	}

	workDir, err := os.MkdirTemp(s.cfg.WorkDir, "whisperx-*")
	if err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "prepare", "create work dir", err)
	}
	defer os.RemoveAll(workDir)

	rawPath := filepath.Join(workDir, "recording.wav")
	if err := os.WriteFile(rawPath, audio, 0o644); err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "prepare", "write recording", err)
	}
	inputPath := filepath.Join(workDir, "input.wav")
	if err := s.run(ctx, s.ffmpegBinary, buildFFmpegNormalizeArgs(rawPath, inputPath)...); err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "resample", "", err)
	}

	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("whisperx transcription started", logging.String("model", s.Model()), logging.Bool("cuda", s.cfg.CUDAEnabled))
	if err := s.run(ctx, UVXCommand, s.buildArgs(inputPath, workDir)...); err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "whisperx", "", err)
	}

	payload, err := loadPayload(filepath.Join(workDir, "input.json"))
	if err != nil {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "read output", "", err)
	}
	transcript := payload.transcript()
	if transcript.Text == "" {
		return empty, services.Wrap(services.ErrTranscription, transcribeStage, "read output", "no speech recognized in recording", nil)
	}
	logger.Info("transcription complete",
		logging.String("recording", handle.String()),
		logging.Int("segments", len(transcript.Segments)),
	)
	return transcript, nil
}

// HealthCheck reports whether uvx and ffmpeg are on PATH.
func (s *Service) HealthCheck(context.Context) stage.Health {
	const name = "transcriber"
	if missing := deps.Missing(deps.CheckBinaries(s.Requirements())); len(missing) > 0 {
		return stage.Unhealthy(name, deps.Summary(missing))
	}
	return stage.Healthy(name)
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 40)
	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--beam_size", BeamSize,
		"--temperature", Temperature,
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}
	if lang := isoLanguage(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if prompt := strings.TrimSpace(s.cfg.Prompt); prompt != "" {
		args = append(args, "--initial_prompt", prompt)
	}
	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

// isoLanguage reduces tags like "zh-cn" or "zh_TW" to their two-letter base.
func isoLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if idx := strings.IndexAny(tag, "-_"); idx > 0 {
		tag = tag[:idx]
	}
	if len(tag) != 2 {
		return ""
	}
	return tag
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperXPayload struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

func loadPayload(jsonPath string) (whisperXPayload, error) {
	var payload whisperXPayload
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload, nil
}

func (p whisperXPayload) transcript() stage.Transcript {
	out := stage.Transcript{Language: p.Language}
	parts := make([]string, 0, len(p.Segments))
	for _, seg := range p.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		out.Segments = append(out.Segments, stage.Segment{Start: seg.Start, End: seg.End, Text: text})
	}
	out.Text = strings.Join(parts, "\n")
	return out
}
