package daemonctl

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"callqa/internal/api"
	"callqa/internal/config"
	"callqa/internal/daemonrun"
	"callqa/internal/jobs"
	"callqa/internal/preflight"
)

// Snapshot is the status rendered by the CLI.
type Snapshot struct {
	Running bool
	PID     int
	Status  api.SystemStatus
}

// BuildStatusSnapshot asks the running daemon for its status. When the daemon
// is down it reads job counts straight from the database and probes the
// dependencies locally.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config, client *Client, logger *slog.Logger) (Snapshot, error) {
	status, err := client.Status(ctx)
	if err == nil {
		pid, _ := ReadPID(cfg.PIDPath())
		return Snapshot{Running: true, PID: pid, Status: status}, nil
	}
	if !errors.Is(err, ErrDaemonNotRunning) {
		return Snapshot{}, err
	}

	offline, err := offlineStatus(ctx, cfg, logger)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Status: offline}, nil
}

func offlineStatus(ctx context.Context, cfg *config.Config, logger *slog.Logger) (api.SystemStatus, error) {
	status := api.SystemStatus{
		JobStats:     map[string]int{},
		DatabasePath: cfg.DatabasePath(),
		Workflow:     api.WorkflowStatus{Active: []api.ActiveJob{}},
	}
	if _, statErr := os.Stat(cfg.DatabasePath()); statErr == nil {
		store, err := jobs.Open(cfg)
		if err != nil {
			return status, err
		}
		defer store.Close()
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		status, err = api.NewJobService(store, nil, logger).SystemStatus(queryCtx)
		if err != nil {
			return status, err
		}
	}

	results := daemonrun.CheckDependencies(ctx, cfg, logger)
	status.Dependencies = api.FromProbeResults(results)
	status.Ready = len(results) > 0 && allPassed(results)
	return status, nil
}

func allPassed(results []preflight.Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
