package scheduler

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const sqlJobStoreSchema = `
CREATE TABLE IF NOT EXISTS scheduler_jobs (
	id          TEXT PRIMARY KEY,
	func_ref    TEXT NOT NULL,
	trigger     TEXT NOT NULL,
	interval_ns INTEGER NOT NULL,
	next_run_at TIMESTAMP,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
)`

// SQLJobStore keeps jobs in a scheduler_jobs table so registrations
// survive restarts and are shared by every process using the database
type SQLJobStore struct {
	db *sql.DB
}

// NewSQLJobStore creates the scheduler_jobs table if needed
func NewSQLJobStore(db *sql.DB) (*SQLJobStore, error) {
	if _, err := db.Exec(sqlJobStoreSchema); err != nil {
		return nil, fmt.Errorf("failed to create scheduler_jobs table: %w", err)
	}
	return &SQLJobStore{db: db}, nil
}

// AddJob stores a new job
func (s *SQLJobStore) AddJob(job *Job) error {
	query := `
		INSERT INTO scheduler_jobs (id, func_ref, trigger, interval_ns, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query, job.ID, job.FuncRef, string(job.Trigger), int64(job.Interval),
		nullTime(job.NextRunAt), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job %s: %w", job.ID, ErrConflictingID)
		}
		return fmt.Errorf("failed to add job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob updates an existing job
func (s *SQLJobStore) UpdateJob(job *Job) error {
	query := `
		UPDATE scheduler_jobs
		SET func_ref = ?, trigger = ?, interval_ns = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.Exec(query, job.FuncRef, string(job.Trigger), int64(job.Interval),
		nullTime(job.NextRunAt), job.UpdatedAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", job.ID, ErrJobNotFound)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *SQLJobStore) GetJob(id string) (*Job, error) {
	query := `
		SELECT id, func_ref, trigger, interval_ns, next_run_at, created_at, updated_at
		FROM scheduler_jobs
		WHERE id = ?
	`

	job, err := scanJob(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return job, err
}

// ListJobs returns every job ordered by ID
func (s *SQLJobStore) ListJobs() ([]*Job, error) {
	query := `
		SELECT id, func_ref, trigger, interval_ns, next_run_at, created_at, updated_at
		FROM scheduler_jobs
		ORDER BY id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RemoveJob removes a job
func (s *SQLJobStore) RemoveJob(id string) error {
	res, err := s.db.Exec(`DELETE FROM scheduler_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job      Job
		trigger  string
		interval int64
		nextRun  sql.NullTime
	)

	if err := row.Scan(&job.ID, &job.FuncRef, &trigger, &interval, &nextRun, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}

	job.Trigger = Trigger(trigger)
	job.Interval = time.Duration(interval)
	if nextRun.Valid {
		job.NextRunAt = nextRun.Time
	}
	return &job, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
