package jobs

import (
	"context"
	"log/slog"
	"time"

	"janitor/internal/infrastructure"
	"janitor/internal/metrics"
	"janitor/internal/reporting"
	"janitor/internal/scheduler"
	"janitor/internal/schema"
	"janitor/internal/store"
	"janitor/internal/websocket"
)

// RunStore records job runs
type RunStore interface {
	StartRun(jobID string, startedAt time.Time) (*store.JobRun, error)
	FinishRun(run *store.JobRun, finishedAt time.Time, runErr error) error
}

// Publisher pushes live events
type Publisher interface {
	Publish(ctx context.Context, messageType string, data interface{})
}

// Recorder wraps a Processor so each cycle leaves a job_runs row, updates
// the job metrics and is announced to websocket clients
type Recorder struct {
	jobID   string
	next    Processor
	runs    RunStore
	metrics *metrics.Set
	events  Publisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder for jobID. metrics and events may be nil.
func NewRecorder(jobID string, next Processor, runs RunStore, set *metrics.Set, events Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{
		jobID:   jobID,
		next:    next,
		runs:    runs,
		metrics: set,
		events:  events,
		logger:  infrastructure.WithComponent(logger, "recorder").With(slog.String("job.id", jobID)),
		now:     time.Now,
	}
}

// Process runs the wrapped processor. Bookkeeping failures are logged and
// never mask the processor's own result.
func (r *Recorder) Process(ctx context.Context) error {
	started := r.now().UTC()

	run, err := r.runs.StartRun(r.jobID, started)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to record run start", slog.String("error", err.Error()))
	} else {
		r.publish(ctx, websocket.TypeRunStarted, run)
	}
	r.gaugeAdd(ctx, 1)

	procErr := r.next.Process(ctx)

	finished := r.now().UTC()
	r.gaugeAdd(ctx, -1)
	r.observe(ctx, procErr, finished.Sub(started), finished)

	if run != nil {
		if err := r.runs.FinishRun(run, finished, procErr); err != nil {
			r.logger.ErrorContext(ctx, "failed to record run finish", slog.String("error", err.Error()))
		} else {
			r.publish(ctx, websocket.TypeRunFinished, run)
		}
	}

	return procErr
}

func (r *Recorder) publish(ctx context.Context, messageType string, run *store.JobRun) {
	if r.events != nil {
		r.events.Publish(ctx, messageType, schema.DumpRun(run))
	}
}

func (r *Recorder) gaugeAdd(ctx context.Context, v float64) {
	if r.metrics == nil {
		return
	}
	if err := r.metrics.JobsRunning.Add(v, r.jobID); err != nil {
		r.logger.WarnContext(ctx, "failed to update metrics", slog.String("error", err.Error()))
	}
}

func (r *Recorder) observe(ctx context.Context, procErr error, elapsed time.Duration, finished time.Time) {
	if r.metrics == nil {
		return
	}

	status := store.RunStatusSuccess
	if procErr != nil {
		status = store.RunStatusError
	}

	for _, err := range []error{
		r.metrics.JobRuns.Inc(r.jobID, status),
		r.metrics.JobDuration.Observe(elapsed.Seconds(), r.jobID),
		r.metrics.JobLastRun.Set(float64(finished.UnixNano())/1e9, r.jobID),
	} {
		if err != nil {
			r.logger.WarnContext(ctx, "failed to update metrics", slog.String("error", err.Error()))
		}
	}
}

// Listener counts skipped firings and reports job errors
func Listener(set *metrics.Set, reporter reporting.Reporter, logger *slog.Logger) scheduler.Listener {
	logger = infrastructure.WithComponent(logger, "jobs")
	return func(event scheduler.Event) {
		switch event.Kind {
		case scheduler.EventSkipped:
			if set != nil {
				if err := set.JobRuns.Inc(event.JobID, "skipped"); err != nil {
					logger.Warn("failed to update metrics", slog.String("error", err.Error()))
				}
			}
		case scheduler.EventError:
			if reporter != nil {
				reporter.CaptureError(context.Background(), event.Err)
			}
		}
	}
}
