package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"callqa/internal/config"
	"callqa/internal/events"
	"callqa/internal/jobs"
	"callqa/internal/logging"
	"callqa/internal/preflight"
	"callqa/internal/stage"
)

// ErrStopped is returned by Submit once the manager has been stopped.
var ErrStopped = errors.New("workflow manager stopped")

// Readiness reports every unavailable dependency. An empty slice means ready.
type Readiness interface {
	Check(ctx context.Context) []preflight.Unavailable
}

// Manager coordinates job execution across the stage adapters.
type Manager struct {
	cfg       *config.Config
	store     *jobs.Store
	adapters  stage.Set
	readiness Readiness
	publisher events.Publisher
	logger    *slog.Logger

	analyzeAttempts int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	active  map[string]jobs.Stage
	lastErr error
	lastJob string
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithReadiness replaces the readiness checker built from the config.
func WithReadiness(r Readiness) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.readiness = r
		}
	}
}

// WithPublisher routes lifecycle events to p.
func WithPublisher(p events.Publisher) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.publisher = p
		}
	}
}

// WithAnalyzeAttempts overrides the analysis attempt budget.
func WithAnalyzeAttempts(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.analyzeAttempts = n
		}
	}
}

// NewManager constructs a workflow manager. Adapters are shared by every
// job and must be safe for concurrent use.
func NewManager(cfg *config.Config, store *jobs.Store, adapters stage.Set, logger *slog.Logger, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:             cfg,
		store:           store,
		adapters:        adapters,
		publisher:       events.Noop{},
		logger:          logging.NewComponentLogger(logger, "workflow-manager"),
		analyzeAttempts: defaultAnalyzeAttempts,
		ctx:             ctx,
		cancel:          cancel,
		active:          make(map[string]jobs.Stage),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.readiness == nil {
		m.readiness = preflight.ForPipeline(cfg, adapters)
	}
	return m
}
