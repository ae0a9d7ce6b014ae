package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"callqa/internal/api"
	"callqa/internal/daemonctl"
	"callqa/internal/jobs"
)

var jobStatusOrder = []jobs.Status{
	jobs.StatusPending,
	jobs.StatusRunning,
	jobs.StatusSucceeded,
	jobs.StatusFailed,
}

type statusOutput struct {
	Running bool             `json:"running"`
	PID     int              `json:"pid,omitempty"`
	Status  api.SystemStatus `json:"status"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			client, err := ctx.client()
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg, client, ctx.cliLogger(cmd))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, statusOutput{Running: snapshot.Running, PID: snapshot.PID, Status: snapshot.Status})
			}
			stdout := cmd.OutOrStdout()
			renderSnapshot(stdout, snapshot, shouldColorize(stdout))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}

func renderSnapshot(w io.Writer, snapshot daemonctl.Snapshot, colorize bool) {
	printSection(w, "System Status", colorize, systemLines(snapshot, colorize))
	printSection(w, "Dependencies", colorize, dependencyLines(snapshot.Status.Dependencies, colorize))

	for _, line := range renderSectionHeader("Active Jobs", colorize) {
		fmt.Fprintln(w, line)
	}
	active := snapshot.Status.Workflow.Active
	if len(active) == 0 {
		fmt.Fprintln(w, "No active jobs")
	} else {
		rows := make([][]string, 0, len(active))
		for _, job := range active {
			rows = append(rows, []string{job.ID, job.Stage})
		}
		fmt.Fprint(w, renderTable([]string{"Job", "Stage"}, rows, nil))
	}
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(w, line)
	}
	rows := jobStatsRows(snapshot.Status.JobStats)
	if len(rows) == 0 {
		fmt.Fprintln(w, "No jobs recorded")
		return
	}
	fmt.Fprint(w, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func systemLines(snapshot daemonctl.Snapshot, colorize bool) []string {
	status := snapshot.Status
	var lines []string
	switch {
	case snapshot.Running && snapshot.PID > 0:
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", snapshot.PID), colorize))
	case snapshot.Running:
		lines = append(lines, renderStatusLine("Daemon", statusOK, "Running", colorize))
	default:
		lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
	}
	if status.Ready {
		lines = append(lines, renderStatusLine("Ready", statusOK, "yes", colorize))
	} else {
		lines = append(lines, renderStatusLine("Ready", statusWarn, "no", colorize))
	}
	if snapshot.Running {
		kind := statusOK
		if !status.Workflow.Accepting {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine("Accepting jobs", kind, yesNo(status.Workflow.Accepting), colorize))
	}
	if status.DatabasePath != "" {
		lines = append(lines, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	}
	if status.Workflow.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, fmt.Sprintf("job %s: %s", status.Workflow.LastJobID, status.Workflow.LastError), colorize))
	}
	return lines
}

// jobStatsRows lists known statuses in pipeline order followed by any
// others alphabetically. Zero counts are omitted.
func jobStatsRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	seen := make(map[string]bool, len(jobStatusOrder))
	for _, status := range jobStatusOrder {
		key := string(status)
		seen[key] = true
		if count := stats[key]; count > 0 {
			rows = append(rows, []string{key, fmt.Sprintf("%d", count)})
		}
	}
	var extra []string
	for key, count := range stats {
		if !seen[key] && count > 0 {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		rows = append(rows, []string{key, fmt.Sprintf("%d", stats[key])})
	}
	return rows
}
