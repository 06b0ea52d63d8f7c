package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"janitor/internal/infrastructure"
	"janitor/internal/scheduler"
	"janitor/internal/store"
)

// JobScheduler is the part of the scheduler the API uses
type JobScheduler interface {
	Jobs() ([]*scheduler.Job, error)
	GetJob(id string) (*scheduler.Job, error)
	RunJob(id string) error
}

// RunRepository reads job run history
type RunRepository interface {
	GetRun(id string) (*store.JobRun, error)
	ListRuns(jobID string, limit int) ([]*store.JobRun, error)
}

// JobService exposes scheduled jobs and their runs
type JobService struct {
	scheduler JobScheduler
	runs      RunRepository
	logger    *slog.Logger
}

// NewJobService creates a job service
func NewJobService(s JobScheduler, runs RunRepository, logger *slog.Logger) *JobService {
	return &JobService{
		scheduler: s,
		runs:      runs,
		logger:    infrastructure.WithComponent(logger, "job_service"),
	}
}

// ListJobs returns every registered job
func (s *JobService) ListJobs(ctx context.Context) ([]*scheduler.Job, error) {
	jobs, err := s.scheduler.Jobs()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// Trigger fires job id once, outside its interval
func (s *JobService) Trigger(ctx context.Context, id string) error {
	err := s.scheduler.RunJob(id)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "job triggered", slog.String("job_id", id))
		return nil
	case errors.Is(err, scheduler.ErrJobNotFound):
		return ErrJobNotFound
	case errors.Is(err, scheduler.ErrJobBusy):
		return ErrJobBusy
	case errors.Is(err, scheduler.ErrNotRunning):
		return ErrSchedulerStopped
	default:
		return fmt.Errorf("failed to trigger job %s: %w", id, err)
	}
}

// ListRuns returns recent runs, newest first. An empty jobID lists every
// job; limit 0 means no limit.
func (s *JobService) ListRuns(ctx context.Context, jobID string, limit int) ([]*store.JobRun, error) {
	runs, err := s.runs.ListRuns(jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run
func (s *JobService) GetRun(ctx context.Context, id string) (*store.JobRun, error) {
	run, err := s.runs.GetRun(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}
