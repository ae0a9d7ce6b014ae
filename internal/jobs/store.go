package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"callqa/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db    *sql.DB
	path  string
	locks *keyedMutex
	now   func() time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// Fixed-width so lexical order matches chronological order.
	timeLayout = "2006-01-02T15:04:05.000000000Z"

	dsnParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
)

// Open initializes or connects to the job database under the configured data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?"+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{
		db:    db,
		path:  dbPath,
		locks: newKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database file exists and answers queries.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("stat job database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping job database: %w", err)
	}
	return nil
}

// Create inserts a PENDING job for the raw script with all seven steps PENDING.
func (s *Store) Create(ctx context.Context, rawScript string) (*Job, error) {
	id := uuid.NewString()
	timestamp := formatTime(s.now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, status, script, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			id, StatusPending, rawScript, timestamp, timestamp,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		for position, stage := range Stages {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO job_steps (job_id, position, stage, status) VALUES (?, ?, ?, ?)`,
				id, position, stage, StepPending,
			); err != nil {
				return fmt.Errorf("insert step %s: %w", stage, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get returns a snapshot of the job and all of its steps.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	return loadJob(ctx, s.db, id)
}

// List returns up to limit jobs, newest first. A non-positive limit returns all jobs.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+joinedColumns+`
         FROM (SELECT rowid AS seq, jobs.* FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?) j
         LEFT JOIN job_steps s ON s.job_id = j.id
         ORDER BY j.created_at DESC, j.seq DESC, s.position`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Delete removes a finished job. Pending or running jobs are refused with ErrJobActive.
func (s *Store) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read job status: %w", err)
		}
		if !status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrJobActive, id, status)
		}
		return deleteJobTx(ctx, tx, id)
	})
}

// PurgeBefore deletes finished jobs created before cutoff and returns how many were removed.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ids, err := selectIDs(ctx, tx,
			`SELECT id FROM jobs WHERE status IN (?, ?) AND created_at < ?`,
			StatusSucceeded, StatusFailed, formatTime(cutoff),
		)
		if err != nil {
			return fmt.Errorf("select expired jobs: %w", err)
		}
		for _, id := range ids {
			if err := deleteJobTx(ctx, tx, id); err != nil {
				return err
			}
		}
		removed = int64(len(ids))
		return nil
	})
	return removed, err
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job counts for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusRunning:
			health.Running += count
		case StatusSucceeded:
			health.Succeeded += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

func deleteJobTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM job_steps WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func selectIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const joinedColumns = `j.id, j.status, j.script, j.created_at, j.updated_at, j.started_at, j.finished_at,
       j.report_json, j.failure_stage, j.failure_kind, j.failure_message,
       s.stage, s.status, s.started_at, s.finished_at, s.output, s.error`

// loadJob reads the job row and its steps in a single statement so the
// result never mixes states from two different writes.
func loadJob(ctx context.Context, q querier, id string) (*Job, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+joinedColumns+`
         FROM jobs j LEFT JOIN job_steps s ON s.job_id = j.id
         WHERE j.id = ?
         ORDER BY s.position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrNotFound
	}
	return jobs[0], nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var (
		ordered []*Job
		current *Job
	)
	for rows.Next() {
		var id, status, rawScript, createdRaw, updatedRaw string
		var startedRaw, finishedRaw, reportJSON, failureStage, failureKind, failureMessage sql.NullString
		var stepStage, stepStatus, stepStarted, stepFinished, stepOutput, stepError sql.NullString
		if err := rows.Scan(
			&id, &status, &rawScript, &createdRaw, &updatedRaw, &startedRaw, &finishedRaw,
			&reportJSON, &failureStage, &failureKind, &failureMessage,
			&stepStage, &stepStatus, &stepStarted, &stepFinished, &stepOutput, &stepError,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}

		if current == nil || current.ID != id {
			job := &Job{
				ID:         id,
				Status:     Status(status),
				Script:     rawScript,
				CreatedAt:  parseTime(createdRaw),
				UpdatedAt:  parseTime(updatedRaw),
				StartedAt:  parseNullTime(startedRaw),
				FinishedAt: parseNullTime(finishedRaw),
			}
			if reportJSON.Valid && reportJSON.String != "" {
				var report Report
				if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
					return nil, fmt.Errorf("decode report for %s: %w", id, err)
				}
				job.Report = &report
			}
			if failureStage.Valid || failureMessage.Valid {
				job.Failure = &FailureInfo{
					Stage:   Stage(failureStage.String),
					Kind:    failureKind.String,
					Message: failureMessage.String,
				}
			}
			ordered = append(ordered, job)
			current = job
		}

		if stepStage.Valid {
			current.Steps = append(current.Steps, StepRecord{
				Stage:      Stage(stepStage.String),
				Status:     StepStatus(stepStatus.String),
				StartedAt:  parseNullTime(stepStarted),
				FinishedAt: parseNullTime(stepFinished),
				Output:     stepOutput.String,
				Error:      stepError.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return ordered, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t := parseTime(value.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
