package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"callqa/internal/api"
)

func renderReport(w io.Writer, jobID string, report api.Report) {
	fmt.Fprintf(w, "Job:            %s\n", jobID)
	fmt.Fprintf(w, "Accuracy score: %.2f (%.0f%%)\n", report.AccuracyScore, report.AccuracyScore*100)
	fmt.Fprintf(w, "Summary:        %s\n", report.Summary)
	writeBullets(w, "Key differences", report.KeyDifferences)
	writeBullets(w, "Suggestions", report.Suggestions)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Reference script:")
	rows := make([][]string, 0, len(report.ReferenceScript))
	for i, turn := range report.ReferenceScript {
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), turn.Speaker, turn.Text})
	}
	fmt.Fprint(w, renderTable([]string{"#", "Speaker", "Text"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Transcript:")
	fmt.Fprintf(w, "  %s\n", strings.TrimSpace(report.Transcript))
}

func writeBullets(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(w, "%s: none\n", title)
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}

func renderJob(w io.Writer, job api.Job) {
	fmt.Fprintf(w, "Job:       %s\n", job.ID)
	fmt.Fprintf(w, "Status:    %s\n", job.Status)
	if job.CurrentStage != "" {
		fmt.Fprintf(w, "Stage:     %s\n", job.CurrentStage)
	}
	fmt.Fprintf(w, "Created:   %s\n", job.CreatedAt)
	if job.StartedAt != "" {
		fmt.Fprintf(w, "Started:   %s\n", job.StartedAt)
	}
	if job.FinishedAt != "" {
		fmt.Fprintf(w, "Finished:  %s\n", job.FinishedAt)
	}
	fmt.Fprintf(w, "Report:    %s\n", yesNo(job.HasReport))
	if job.Failure != nil {
		fmt.Fprintf(w, "Failure:   %s (%s) %s\n", job.Failure.Stage, job.Failure.Kind, job.Failure.Message)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, renderSteps(job.Steps))
}

func renderSteps(steps []api.Step) string {
	rows := make([][]string, 0, len(steps))
	for _, step := range steps {
		detail := step.Output
		if step.Error != "" {
			detail = step.Error
		}
		rows = append(rows, []string{step.Stage, step.Status, formatDurationMs(step.DurationMs), truncate(detail, 60)})
	}
	return renderTable([]string{"Stage", "Status", "Duration", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
}

func renderJobList(w io.Writer, list []api.Job) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No jobs")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		stage := job.CurrentStage
		if job.Failure != nil {
			stage = job.Failure.Stage
		}
		rows = append(rows, []string{job.ID, job.Status, stage, job.CreatedAt, yesNo(job.HasReport)})
	}
	fmt.Fprint(w, renderTable([]string{"ID", "Status", "Stage", "Created", "Report"}, rows, nil))
}

func formatDurationMs(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
