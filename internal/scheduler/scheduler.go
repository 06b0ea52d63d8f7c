package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"janitor/internal/infrastructure"
)

// EventKind classifies job events
type EventKind string

const (
	EventExecuted EventKind = "executed"
	EventError    EventKind = "error"
	// EventSkipped means a firing was dropped because the previous run
	// had not finished
	EventSkipped EventKind = "skipped"
)

// Event is delivered to listeners after each firing
type Event struct {
	JobID    string
	Kind     EventKind
	Started  time.Time
	Finished time.Time
	Err      error
}

// Listener receives job events; it runs on the job goroutine
type Listener func(Event)

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the scheduler logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithTracer sets the tracer used for job spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = tracer
	}
}

// runner is the ticker goroutine of one scheduled job
type runner struct {
	cancel context.CancelFunc
	// active is shared with the replacement runner so a replaced job still
	// never overlaps with its own in-flight run
	active *atomic.Bool
}

// Scheduler fires registered jobs on their triggers. Each job runs at
// most one instance at a time.
type Scheduler struct {
	mu        sync.Mutex
	store     JobStore
	funcs     map[string]JobFunc
	runners   map[string]*runner
	listeners []Listener
	running   bool

	tickCtx    context.Context
	stopTicks  context.CancelFunc
	jobCtx     context.Context
	cancelJobs context.CancelFunc
	tickers    sync.WaitGroup
	jobs       sync.WaitGroup

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a stopped Scheduler backed by store
func New(store JobStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		funcs:   make(map[string]JobFunc),
		runners: make(map[string]*runner),
		logger:  slog.Default(),
		tracer:  tracenoop.NewTracerProvider().Tracer("scheduler"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = infrastructure.WithComponent(s.logger, "scheduler")
	return s
}

// Store returns the job store
func (s *Scheduler) Store() JobStore {
	return s.store
}

// AddListener registers fn for job events
func (s *Scheduler) AddListener(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// AddJob registers spec. A job with the same ID is replaced when
// spec.ReplaceExisting is set, otherwise ErrConflictingID is returned.
// Jobs added while running are scheduled immediately.
func (s *Scheduler) AddJob(spec JobSpec) (*Job, error) {
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid job %q: %w", spec.ID, err)
	}
	if spec.FuncRef == "" {
		spec.FuncRef = spec.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := &Job{
		ID:        spec.ID,
		FuncRef:   spec.FuncRef,
		Trigger:   spec.Trigger,
		Interval:  spec.Interval,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.running {
		job.NextRunAt = now.Add(job.Interval)
	}

	replaced := false
	if err := s.store.AddJob(job); err != nil {
		if !errors.Is(err, ErrConflictingID) || !spec.ReplaceExisting {
			return nil, err
		}
		existing, err := s.store.GetJob(job.ID)
		if err != nil {
			return nil, err
		}
		job.CreatedAt = existing.CreatedAt
		if err := s.store.UpdateJob(job); err != nil {
			return nil, err
		}
		replaced = true
	}

	s.funcs[job.ID] = spec.Func
	if s.running {
		s.scheduleLocked(job)
	}

	s.logger.Info("job registered",
		slog.String("job_id", job.ID),
		slog.String("trigger", string(job.Trigger)),
		slog.Duration("interval", job.Interval),
		slog.Bool("replaced", replaced))

	jobCopy := *job
	return &jobCopy, nil
}

// RemoveJob unschedules and deletes a job
func (s *Scheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.RemoveJob(id); err != nil {
		return err
	}
	if r, ok := s.runners[id]; ok {
		r.cancel()
		delete(s.runners, id)
	}
	delete(s.funcs, id)
	return nil
}

// GetJob returns a registered job
func (s *Scheduler) GetJob(id string) (*Job, error) {
	return s.store.GetJob(id)
}

// Jobs lists registered jobs
func (s *Scheduler) Jobs() ([]*Job, error) {
	return s.store.ListJobs()
}

// Running reports whether Start has been called without Shutdown
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins firing every stored job that has a function registered in
// this process. Stored jobs without one are left in the store.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	jobs, err := s.store.ListJobs()
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	s.tickCtx, s.stopTicks = context.WithCancel(context.Background())
	s.jobCtx, s.cancelJobs = context.WithCancel(context.Background())
	s.running = true

	now := s.now()
	for _, job := range jobs {
		if _, ok := s.funcs[job.ID]; !ok {
			s.logger.Warn("no function registered for stored job; not scheduling",
				slog.String("job_id", job.ID),
				slog.String("func_ref", job.FuncRef))
			continue
		}
		job.NextRunAt = now.Add(job.Interval)
		job.UpdatedAt = now
		if err := s.store.UpdateJob(job); err != nil {
			s.logger.Warn("failed to record next run time", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
		s.scheduleLocked(job)
	}

	s.logger.Info("scheduler started", slog.Int("jobs", len(s.runners)))
	return nil
}

// Shutdown stops firing jobs. With wait set it blocks until running jobs
// return; otherwise their contexts are cancelled and it returns at once.
func (s *Scheduler) Shutdown(wait bool) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.stopTicks()
	s.runners = make(map[string]*runner)
	s.mu.Unlock()

	s.tickers.Wait()

	if wait {
		s.jobs.Wait()
	}
	s.cancelJobs()

	s.logger.Info("scheduler shut down", slog.Bool("waited", wait))
	return nil
}

// RunJob fires a job once now, outside its trigger. It returns
// ErrJobBusy when the job is already running.
func (s *Scheduler) RunJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	r, ok := s.runners[id]
	if !ok {
		if _, err := s.store.GetJob(id); err != nil {
			return err
		}
		return fmt.Errorf("job %s is not scheduled in this process: %w", id, ErrJobNotFound)
	}

	if !s.fireLocked(id, r) {
		return fmt.Errorf("job %s: %w", id, ErrJobBusy)
	}
	return nil
}

// scheduleLocked starts (or restarts) the ticker of job. s.mu must be held.
func (s *Scheduler) scheduleLocked(job *Job) {
	active := new(atomic.Bool)
	if old, ok := s.runners[job.ID]; ok {
		old.cancel()
		active = old.active
	}

	ctx, cancel := context.WithCancel(s.tickCtx)
	r := &runner{cancel: cancel, active: active}
	s.runners[job.ID] = r

	s.tickers.Add(1)
	go s.loop(ctx, job.ID, job.Interval, r)
}

func (s *Scheduler) loop(ctx context.Context, id string, interval time.Duration, r *runner) {
	defer s.tickers.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if ctx.Err() == nil {
				s.fireLocked(id, r)
			}
			s.mu.Unlock()
		}
	}
}

// fireLocked starts one run of id unless one is in progress. s.mu must be held.
func (s *Scheduler) fireLocked(id string, r *runner) bool {
	fn := s.funcs[id]
	listeners := append([]Listener(nil), s.listeners...)

	if !r.active.CompareAndSwap(false, true) {
		s.logger.Warn("execution of job skipped: maximum number of running instances reached (1)",
			slog.String("job_id", id))
		now := s.now()
		go notify(listeners, Event{JobID: id, Kind: EventSkipped, Started: now, Finished: now})
		return false
	}

	jobCtx := s.jobCtx
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer r.active.Store(false)
		s.execute(jobCtx, id, fn, listeners)
	}()
	return true
}

func (s *Scheduler) execute(ctx context.Context, id string, fn JobFunc, listeners []Listener) {
	ctx = infrastructure.ContextWithTraceID(ctx)
	ctx, span := s.tracer.Start(ctx, "job "+id,
		trace.WithAttributes(attribute.String("job.id", id)))
	defer span.End()

	logger := s.logger.With(slog.String("job_id", id))
	started := s.now()
	logger.DebugContext(ctx, "running job")

	err := runSafely(ctx, fn)
	finished := s.now()

	event := Event{JobID: id, Kind: EventExecuted, Started: started, Finished: finished, Err: err}
	if err != nil {
		event.Kind = EventError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "job raised an error",
			slog.String("error", err.Error()),
			slog.Duration("duration", finished.Sub(started)))
	} else {
		logger.InfoContext(ctx, "job executed successfully",
			slog.Duration("duration", finished.Sub(started)))
	}

	s.recordNextRun(id, finished)
	notify(listeners, event)
}

func (s *Scheduler) recordNextRun(id string, finished time.Time) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return
	}
	job.NextRunAt = finished.Add(job.Interval)
	job.UpdatedAt = finished
	if err := s.store.UpdateJob(job); err != nil {
		s.logger.Warn("failed to record next run time", slog.String("job_id", id), slog.String("error", err.Error()))
	}
}

func runSafely(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

func notify(listeners []Listener, event Event) {
	for _, l := range listeners {
		l(event)
	}
}
