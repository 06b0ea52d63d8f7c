// Package jobs defines the scheduled work of the application: the run_loop
// job definition, the startup hook it calls and the recorder that wraps each
// invocation with run history, metrics and live events.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"janitor/internal/infrastructure"
	"janitor/internal/scheduler"
)

// RunLoopID is the id of the periodic processing job
const RunLoopID = "run_loop"

// Processor performs one processing cycle
type Processor interface {
	Process(ctx context.Context) error
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context) error

// Process calls f
func (f ProcessorFunc) Process(ctx context.Context) error { return f(ctx) }

// Startup is the hook the run_loop job invokes on each firing
func Startup(p Processor) scheduler.JobFunc {
	return func(ctx context.Context) error {
		return p.Process(ctx)
	}
}

// Definitions returns the scheduled job list for a check interval
func Definitions(checkInterval time.Duration, p Processor) []scheduler.JobSpec {
	return []scheduler.JobSpec{
		{
			ID:              RunLoopID,
			Func:            Startup(p),
			FuncRef:         "jobs.Startup",
			Trigger:         scheduler.TriggerInterval,
			ReplaceExisting: true,
			Interval:        checkInterval,
		},
	}
}

// DefaultProcessor is used when no processor is supplied; it only logs the
// cycle
type DefaultProcessor struct {
	logger *slog.Logger
}

// NewDefaultProcessor creates the logging processor
func NewDefaultProcessor(logger *slog.Logger) *DefaultProcessor {
	return &DefaultProcessor{logger: infrastructure.WithComponent(logger, "processor")}
}

func (p *DefaultProcessor) Process(ctx context.Context) error {
	p.logger.DebugContext(ctx, "processing cycle")
	return ctx.Err()
}
