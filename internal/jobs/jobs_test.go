package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"janitor/internal/metrics"
	"janitor/internal/scheduler"
	"janitor/internal/schema"
	"janitor/internal/store"
	"janitor/internal/websocket"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type published struct {
	kind string
	run  schema.RunView
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(_ context.Context, messageType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{kind: messageType, run: data.(schema.RunView)})
}

type fakeReporter struct {
	mu       sync.Mutex
	captured []error
}

func (r *fakeReporter) CaptureError(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured = append(r.captured, err)
}
func (r *fakeReporter) Middleware(next http.Handler) http.Handler { return next }
func (r *fakeReporter) Flush(time.Duration) bool                  { return true }
func (r *fakeReporter) Enabled() bool                             { return true }

func newTestStore(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)
	return db
}

func newTestMetrics(t *testing.T) (*metrics.Set, *prometheus.Registry) {
	t.Helper()

	dir := t.TempDir()
	shard, err := metrics.OpenShard(dir)
	require.NoError(t, err)
	t.Cleanup(func() { shard.Close() })

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg, dir))
	return metrics.NewSet(shard), reg
}

// counterValue sums a counter family's samples matching labels
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metric:
		for _, m := range family.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestDefinitions(t *testing.T) {
	specs := Definitions(30*time.Second, NewDefaultProcessor(discard))

	require.Len(t, specs, 1)
	spec := specs[0]
	assert.Equal(t, RunLoopID, spec.ID)
	assert.Equal(t, scheduler.TriggerInterval, spec.Trigger)
	assert.True(t, spec.ReplaceExisting)
	assert.Equal(t, 30*time.Second, spec.Interval)
	require.NotNil(t, spec.Func)
	assert.NoError(t, spec.Func(context.Background()))
}

func TestStartup_DelegatesToProcessor(t *testing.T) {
	calls := 0
	fn := Startup(ProcessorFunc(func(context.Context) error {
		calls++
		return errors.New("boom")
	}))

	assert.EqualError(t, fn(context.Background()), "boom")
	assert.Equal(t, 1, calls)
}

func TestRecorder(t *testing.T) {
	tests := []struct {
		name       string
		procErr    error
		wantStatus string
	}{
		{name: "success", wantStatus: store.RunStatusSuccess},
		{name: "failure", procErr: errors.New("disk full"), wantStatus: store.RunStatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestStore(t)
			set, reg := newTestMetrics(t)
			events := &fakePublisher{}

			rec := NewRecorder(RunLoopID, ProcessorFunc(func(context.Context) error {
				return tt.procErr
			}), db, set, events, discard)

			err := rec.Process(context.Background())
			assert.Equal(t, tt.procErr, err)

			runs, err := db.ListRuns(RunLoopID, 0)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, tt.wantStatus, runs[0].Status)
			require.NotNil(t, runs[0].FinishedAt)

			require.Len(t, events.events, 2)
			assert.Equal(t, websocket.TypeRunStarted, events.events[0].kind)
			assert.Equal(t, store.RunStatusRunning, events.events[0].run.Status)
			assert.Equal(t, websocket.TypeRunFinished, events.events[1].kind)
			assert.Equal(t, tt.wantStatus, events.events[1].run.Status)

			assert.Equal(t, 1.0, counterValue(t, reg, "janitor_job_runs_total",
				map[string]string{"job": RunLoopID, "status": tt.wantStatus}))
		})
	}
}

type failingRuns struct{}

func (failingRuns) StartRun(string, time.Time) (*store.JobRun, error) {
	return nil, errors.New("database locked")
}
func (failingRuns) FinishRun(*store.JobRun, time.Time, error) error { return nil }

func TestRecorder_BookkeepingFailureDoesNotMaskResult(t *testing.T) {
	events := &fakePublisher{}
	called := false
	rec := NewRecorder(RunLoopID, ProcessorFunc(func(context.Context) error {
		called = true
		return nil
	}), failingRuns{}, nil, events, discard)

	assert.NoError(t, rec.Process(context.Background()))
	assert.True(t, called)
	assert.Empty(t, events.events)
}

func TestListener(t *testing.T) {
	set, reg := newTestMetrics(t)
	reporter := &fakeReporter{}
	listen := Listener(set, reporter, discard)

	listen(scheduler.Event{JobID: RunLoopID, Kind: scheduler.EventSkipped})
	listen(scheduler.Event{JobID: RunLoopID, Kind: scheduler.EventSkipped})
	listen(scheduler.Event{JobID: RunLoopID, Kind: scheduler.EventError, Err: errors.New("boom")})
	listen(scheduler.Event{JobID: RunLoopID, Kind: scheduler.EventExecuted})

	assert.Equal(t, 2.0, counterValue(t, reg, "janitor_job_runs_total",
		map[string]string{"job": RunLoopID, "status": "skipped"}))
	require.Len(t, reporter.captured, 1)
	assert.EqualError(t, reporter.captured[0], "boom")
}
