package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// JobRun is one execution of a scheduled job
type JobRun struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// Duration returns the run time, or 0 while running
func (r *JobRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StartRun records a running job run and returns it
func (db *DB) StartRun(jobID string, startedAt time.Time) (*JobRun, error) {
	run := &JobRun{
		ID:        uuid.New().String(),
		JobID:     jobID,
		StartedAt: startedAt.UTC(),
		Status:    RunStatusRunning,
	}

	query := `
		INSERT INTO job_runs (id, job_id, started_at, status)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.Exec(query, run.ID, run.JobID, run.StartedAt, run.Status); err != nil {
		return nil, fmt.Errorf("failed to record job run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run finished; a nil runErr means success
func (db *DB) FinishRun(run *JobRun, finishedAt time.Time, runErr error) error {
	finished := finishedAt.UTC()
	run.FinishedAt = &finished
	run.Status = RunStatusSuccess
	run.Error = ""
	if runErr != nil {
		run.Status = RunStatusError
		run.Error = runErr.Error()
	}

	query := `
		UPDATE job_runs
		SET finished_at = ?, status = ?, error = ?
		WHERE id = ?
	`
	res, err := db.Exec(query, finished, run.Status, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish job run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id string) (*JobRun, error) {
	query := `
		SELECT id, job_id, started_at, finished_at, status, error
		FROM job_runs
		WHERE id = ?
	`
	run, err := scanRun(db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first. An empty jobID
// matches every job; limit <= 0 means no limit.
func (db *DB) ListRuns(jobID string, limit int) ([]*JobRun, error) {
	query := `
		SELECT id, job_id, started_at, finished_at, status, error
		FROM job_runs
		WHERE (? = '' OR job_id = ?)
		ORDER BY started_at DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.Query(query, jobID, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer rows.Close()

	runs := []*JobRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*JobRun, error) {
	var (
		run      JobRun
		finished sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.JobID, &run.StartedAt, &finished, &run.Status, &run.Error); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
