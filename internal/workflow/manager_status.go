package workflow

import (
	"context"
	"sort"

	"callqa/internal/jobs"
	"callqa/internal/logging"
)

// ActiveJob names a running job and its current stage.
type ActiveJob struct {
	ID    string
	Stage jobs.Stage
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Accepting  bool
	Active     []ActiveJob
	LastJobID  string
	LastError  string
	JobStats   map[jobs.Status]int
	StatsError string
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Accepting: !m.stopped, LastJobID: m.lastJob}
	for id, stg := range m.active {
		summary.Active = append(summary.Active, ActiveJob{ID: id, Stage: stg})
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	sort.Slice(summary.Active, func(i, j int) bool { return summary.Active[i].ID < summary.Active[j].ID })

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
		summary.StatsError = err.Error()
	}
	summary.JobStats = stats
	return summary
}

// Running reports how many jobs are executing.
func (m *Manager) Running() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

func (m *Manager) setLastError(id string, err error) {
	m.mu.Lock()
	m.lastErr = err
	m.lastJob = id
	m.mu.Unlock()
}
