package scheduler

import (
	"context"
	"errors"
	"time"
)

// Trigger selects how a job is fired
type Trigger string

const (
	// TriggerInterval fires a job every Interval
	TriggerInterval Trigger = "interval"
)

var (
	ErrConflictingID  = errors.New("job id conflicts with an existing job")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobBusy        = errors.New("job is already running")
	ErrAlreadyRunning = errors.New("scheduler is already running")
	ErrNotRunning     = errors.New("scheduler is not running")
)

// JobFunc is the work a job performs on each firing
type JobFunc func(ctx context.Context) error

// JobSpec describes a job to register
type JobSpec struct {
	ID string
	// Func runs on each firing
	Func JobFunc
	// FuncRef names Func in persistent stores; defaults to ID
	FuncRef string
	Trigger Trigger
	// ReplaceExisting updates a job with the same ID instead of failing
	ReplaceExisting bool
	Interval        time.Duration
}

// Job is the stored form of a registered job
type Job struct {
	ID        string        `json:"id"`
	FuncRef   string        `json:"func_ref"`
	Trigger   Trigger       `json:"trigger"`
	Interval  time.Duration `json:"interval"`
	NextRunAt time.Time     `json:"next_run_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// JobStore persists job registrations
type JobStore interface {
	// AddJob stores a new job; ErrConflictingID if the ID is taken
	AddJob(job *Job) error
	// UpdateJob replaces a stored job; ErrJobNotFound if missing
	UpdateJob(job *Job) error
	GetJob(id string) (*Job, error)
	// ListJobs returns every job ordered by ID
	ListJobs() ([]*Job, error)
	RemoveJob(id string) error
}

func (spec JobSpec) validate() error {
	if spec.ID == "" {
		return errors.New("job id is required")
	}
	if spec.Func == nil {
		return errors.New("job func is required")
	}
	switch spec.Trigger {
	case TriggerInterval:
		if spec.Interval <= 0 {
			return errors.New("interval trigger requires a positive interval")
		}
	default:
		return errors.New("unsupported trigger: " + string(spec.Trigger))
	}
	return nil
}
