package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"callqa/internal/config"
	"callqa/internal/logging"
	"callqa/internal/services"
	"callqa/internal/stage"
)

const storeStage = "store"

// Recorder implements stage.Recorder: it merges synthesized clips and writes
// the result through a Backend.
type Recorder struct {
	backend Backend
	pause   time.Duration
	logger  *slog.Logger
}

// NewRecorder builds a recorder that inserts pause of silence between turns.
func NewRecorder(backend Backend, pause time.Duration, logger *slog.Logger) *Recorder {
	return &Recorder{
		backend: backend,
		pause:   pause,
		logger:  logging.NewComponentLogger(logger, "recording"),
	}
}

// NewBackendFromConfig selects the configured backend. js is only used by the
// nats backend and may be nil otherwise.
func NewBackendFromConfig(cfg *config.Config, js nats.JetStreamContext) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", "filesystem":
		return NewFilesystemBackend(cfg.Paths.RecordingsDir), nil
	case "nats":
		if js == nil {
			return nil, services.Wrap(services.ErrConfiguration, storeStage, "select backend", "nats backend requires a JetStream connection", nil)
		}
		return NewNATSBackend(js, cfg.Storage.Bucket)
	default:
		return nil, services.Wrap(services.ErrConfiguration, storeStage, "select backend", fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend), nil)
	}
}

// Backend returns the underlying storage backend.
func (r *Recorder) Backend() Backend {
	return r.backend
}

// Key returns the storage key used for a job's recording.
func Key(jobID string) string {
	return jobID + ".wav"
}

// Store merges clips in order and persists the recording under Key(jobID).
func (r *Recorder) Store(ctx context.Context, jobID string, clips []stage.AudioClip) (stage.RecordingHandle, error) {
	if strings.TrimSpace(jobID) == "" {
		return stage.RecordingHandle{}, services.Wrap(services.ErrStorage, storeStage, "store", "job id required", nil)
	}
	payloads := make([][]byte, 0, len(clips))
	for _, clip := range clips {
		payloads = append(payloads, clip.Data)
	}
	merged, err := Merge(payloads, r.pause)
	if err != nil {
		return stage.RecordingHandle{}, services.Wrap(services.ErrStorage, storeStage, "merge", "could not combine clips", err)
	}
	encoded := EncodeWAV(merged)
	key := Key(jobID)
	if err := r.backend.Put(ctx, key, encoded); err != nil {
		return stage.RecordingHandle{}, services.Wrap(services.ErrStorage, storeStage, "write", r.backend.Name()+" backend rejected recording", err)
	}
	handle := stage.RecordingHandle{
		Key:      key,
		Backend:  r.backend.Name(),
		Size:     int64(len(encoded)),
		Duration: merged.Duration(),
	}
	logging.WithContext(ctx, r.logger).Info("recording stored",
		logging.String("recording", handle.String()),
		logging.Int("clips", len(clips)),
		logging.Any("size_bytes", handle.Size),
		logging.Duration("duration", handle.Duration),
	)
	return handle, nil
}

// Open returns the stored bytes for handle.
func (r *Recorder) Open(ctx context.Context, handle stage.RecordingHandle) ([]byte, error) {
	if handle.Backend != "" && handle.Backend != r.backend.Name() {
		return nil, services.Wrap(services.ErrStorage, storeStage, "open", fmt.Sprintf("handle %s belongs to another backend", handle), nil)
	}
	data, err := r.backend.Get(ctx, handle.Key)
	if err != nil {
		marker := services.ErrStorage
		if errors.Is(err, ErrNotFound) {
			marker = services.ErrNotFound
		}
		return nil, services.Wrap(marker, storeStage, "open", handle.String(), err)
	}
	return data, nil
}

// Delete removes the recording for handle. Missing recordings are ignored.
func (r *Recorder) Delete(ctx context.Context, handle stage.RecordingHandle) error {
	if err := r.backend.Delete(ctx, handle.Key); err != nil {
		return services.Wrap(services.ErrStorage, storeStage, "delete", handle.String(), err)
	}
	return nil
}

// HealthCheck verifies the backend accepts writes.
func (r *Recorder) HealthCheck(ctx context.Context) stage.Health {
	const name = "recording"
	if r == nil || r.backend == nil {
		return stage.Unhealthy(name, "backend not configured")
	}
	if err := r.backend.Check(ctx); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

// Remove deletes the recording stored for jobID, if any.
func (r *Recorder) Remove(ctx context.Context, jobID string) error {
	return r.Delete(ctx, stage.RecordingHandle{Key: Key(jobID), Backend: r.backend.Name()})
}
