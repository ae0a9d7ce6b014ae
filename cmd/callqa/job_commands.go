package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"callqa/internal/api"
	"callqa/internal/daemonctl"
	"callqa/internal/jobs"
)

const jobPollInterval = 200 * time.Millisecond

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var timeout time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit <script-file|->",
		Short: "Submit a conversation script for verification",
		Long: "Submit a conversation script for verification.\n\n" +
			"Each line of the script is \"customer: text\" or \"agent: text\". " +
			"Pass - to read the script from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(cmd, args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			submitted, err := client.Submit(cmd.Context(), script)
			if err != nil {
				return wrapDaemonError(err, ctx.configValue())
			}
			if !wait {
				if asJSON {
					return writeJSON(cmd, submitted)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s submitted\n", submitted.JobID)
				return nil
			}

			waitCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			job, err := waitForJob(waitCtx, client, submitted.JobID)
			if err != nil {
				return fmt.Errorf("wait for job %s: %w", submitted.JobID, err)
			}
			if job.Status != string(jobs.StatusSucceeded) {
				if asJSON {
					if err := writeJSON(cmd, job); err != nil {
						return err
					}
				} else {
					renderJob(cmd.OutOrStdout(), job)
				}
				return jobFailedError(job.ID, job.Status, job.Failure)
			}
			report, err := client.Report(cmd.Context(), job.ID)
			if err != nil {
				return reportError(job.ID, err)
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			renderReport(cmd.OutOrStdout(), job.ID, report)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish and print its report")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Maximum time to wait with --wait")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report <job-id>",
		Short: "Show the verification report of a succeeded job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := client.Report(cmd.Context(), args[0])
			if err != nil {
				return reportError(args[0], wrapDaemonError(err, ctx.configValue()))
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			renderReport(cmd.OutOrStdout(), args[0], report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage verification jobs",
	}

	var limit int
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.List(cmd.Context(), limit)
			if err != nil {
				return wrapDaemonError(err, ctx.configValue())
			}
			if listJSON {
				return writeJSON(cmd, resp)
			}
			renderJobList(cmd.OutOrStdout(), resp.Jobs)
			return nil
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list (0 for all)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print jobs as JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Job(cmd.Context(), args[0])
			if err != nil {
				return wrapDaemonError(err, ctx.configValue())
			}
			if showJSON {
				return writeJSON(cmd, job)
			}
			renderJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the job as JSON")

	stepsCmd := &cobra.Command{
		Use:   "steps <job-id>",
		Short: "Show per-stage progress of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Steps(cmd.Context(), args[0])
			if err != nil {
				return wrapDaemonError(err, ctx.configValue())
			}
			fmt.Fprint(cmd.OutOrStdout(), renderSteps(resp.Steps))
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return wrapDaemonError(err, ctx.configValue())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s\n", args[0])
			return nil
		},
	}

	var days int
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished jobs older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Workflow.CleanupDays
			}
			resp, err := client.Cleanup(cmd.Context(), days)
			if err != nil {
				return wrapDaemonError(err, cfg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s) finished before %s\n", resp.Removed, resp.Cutoff)
			return nil
		},
	}
	cleanupCmd.Flags().IntVar(&days, "days", 0, "Retention window in days (defaults to workflow.cleanup_days)")

	jobsCmd.AddCommand(listCmd, showCmd, stepsCmd, deleteCmd, cleanupCmd)
	return jobsCmd
}

func readScript(cmd *cobra.Command, source string) (string, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("script is empty")
	}
	return string(data), nil
}

// waitForJob polls until the job reaches SUCCEEDED or FAILED.
func waitForJob(ctx context.Context, client *daemonctl.Client, id string) (api.Job, error) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()
	for {
		job, err := client.Job(ctx, id)
		if err != nil {
			return api.Job{}, err
		}
		if jobs.Status(job.Status).IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func reportError(id string, err error) error {
	var apiErr *daemonctl.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return jobFailedError(id, apiErr.Response.Status, apiErr.Response.Failure)
	}
	return err
}

func jobFailedError(id, status string, failure *api.Failure) error {
	if failure == nil {
		return fmt.Errorf("job %s has no report (status %s)", id, status)
	}
	return fmt.Errorf("job %s has no report (status %s): %s failed with %s: %s", id, status, failure.Stage, failure.Kind, failure.Message)
}
