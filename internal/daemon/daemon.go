package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"callqa/internal/api"
	"callqa/internal/config"
	"callqa/internal/jobs"
	"callqa/internal/logging"
	"callqa/internal/workflow"
)

// InterruptedMessage is recorded on jobs a previous daemon left running.
const InterruptedMessage = "interrupted: daemon restarted"

// Daemon coordinates the workflow manager and HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobs.Store
	workflow *workflow.Manager
	service  *api.JobService

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	api     *apiServer
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, wf *workflow.Manager, svc *api.JobService, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil || svc == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and job service")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		service:  svc,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, fails jobs interrupted by a previous run
// and starts serving the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another callqa daemon instance is already running")
	}

	reset, err := d.store.ResetInterrupted(ctx, InterruptedMessage)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset interrupted jobs: %w", err)
	}
	if reset > 0 {
		logging.WarnWithContext(d.logger, "failed jobs interrupted by previous run", "jobs_interrupted",
			logging.Int("count", int(reset)),
			logging.String(logging.FieldImpact, "interrupted jobs have no report"),
			logging.String(logging.FieldErrorHint, "resubmit the scripts"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	server := newAPIServer(d.cfg, d.service, d.logger)
	if err := server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.api = server
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("callqa daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", server.addr()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops the HTTP API, cancels in-flight jobs, waits up to the shutdown
// timeout for them to record their failure and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout())
	defer cancel()
	if err := d.workflow.Stop(ctx); err != nil {
		logging.WarnWithContext(d.logger, "jobs still running at shutdown", "shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "jobs still running are marked FAILED on the next start"),
		)
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("callqa daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the job store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Addr returns the address the HTTP API listens on, or "" when stopped.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() || d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		APIAddress:   d.Addr(),
	}
}
