package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intervalSpec(id string, interval time.Duration, fn JobFunc) JobSpec {
	return JobSpec{
		ID:              id,
		Func:            fn,
		Trigger:         TriggerInterval,
		ReplaceExisting: true,
		Interval:        interval,
	}
}

func TestAddJob_ReplaceExisting(t *testing.T) {
	store := NewMemoryJobStore()
	noop := func(context.Context) error { return nil }

	for i := 0; i < 2; i++ {
		s := New(store, WithLogger(testLogger()))
		_, err := s.AddJob(intervalSpec("run_loop", time.Duration(i+1)*time.Second, noop))
		require.NoError(t, err)
	}

	jobs, err := store.ListJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "run_loop", jobs[0].ID)
	assert.Equal(t, 2*time.Second, jobs[0].Interval)
}

func TestAddJob_Conflict(t *testing.T) {
	s := New(NewMemoryJobStore(), WithLogger(testLogger()))
	spec := intervalSpec("run_loop", time.Second, func(context.Context) error { return nil })
	spec.ReplaceExisting = false

	_, err := s.AddJob(spec)
	require.NoError(t, err)

	_, err = s.AddJob(spec)
	assert.ErrorIs(t, err, ErrConflictingID)
}

func TestAddJob_Invalid(t *testing.T) {
	s := New(NewMemoryJobStore(), WithLogger(testLogger()))
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name string
		spec JobSpec
	}{
		{"missing id", JobSpec{Func: noop, Trigger: TriggerInterval, Interval: time.Second}},
		{"missing func", JobSpec{ID: "a", Trigger: TriggerInterval, Interval: time.Second}},
		{"zero interval", JobSpec{ID: "a", Func: noop, Trigger: TriggerInterval}},
		{"unknown trigger", JobSpec{ID: "a", Func: noop, Trigger: "cron", Interval: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddJob(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestScheduler_FiresOnInterval(t *testing.T) {
	s := New(NewMemoryJobStore(), WithLogger(testLogger()))

	var calls atomic.Int32
	_, err := s.AddJob(intervalSpec("run_loop", 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.True(t, s.Running())

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Shutdown(true))
	assert.False(t, s.Running())

	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no firings after shutdown")

	job, err := s.GetJob("run_loop")
	require.NoError(t, err)
	assert.False(t, job.NextRunAt.IsZero())
}

func TestScheduler_MaxOneInstance(t *testing.T) {
	s := New(NewMemoryJobStore(), WithLogger(testLogger()))

	release := make(chan struct{})
	var running, maxRunning atomic.Int32
	var skipped atomic.Int32

	s.AddListener(func(e Event) {
		if e.Kind == EventSkipped {
			skipped.Add(1)
		}
	})

	_, err := s.AddJob(intervalSpec("slow", 5*time.Millisecond, func(ctx context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			cur := maxRunning.Load()
			if n <= cur || maxRunning.CompareAndSwap(cur, n) {
				break
			}
		}
		<-release
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool { return skipped.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.RunJob("slow"), ErrJobBusy)

	close(release)
	require.NoError(t, s.Shutdown(true))
	assert.EqualValues(t, 1, maxRunning.Load())
}

func TestScheduler_ErrorsAndPanicsReachListeners(t *testing.T) {
	s := New(NewMemoryJobStore(), WithLogger(testLogger()))

	var mu sync.Mutex
	events := map[string]Event{}
	s.AddListener(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events[e.JobID] = e
	})

	boom := errors.New("boom")
	_, err := s.AddJob(intervalSpec("failing", time.Hour, func(context.Context) error { return boom }))
	require.NoError(t, err)
	_, err = s.AddJob(intervalSpec("panicking", time.Hour, func(context.Context) error { panic("bad") }))
	require.NoError(t, err)
	_, err = s.AddJob(intervalSpec("ok", time.Hour, func(context.Context) error { return nil }))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	for _, id := range []string{"failing", "panicking", "ok"} {
		require.NoError(t, s.RunJob(id))
	}
	require.NoError(t, s.Shutdown(true))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventError, events["failing"].Kind)
	assert.ErrorIs(t, events["failing"].Err, boom)
	assert.Equal(t, EventError, events["panicking"].Kind)
	assert.Contains(t, events["panicking"].Err.Error(), "job panicked: bad")
	assert.Equal(t, EventExecuted, events["ok"].Kind)
	assert.NoError(t, events["ok"].Err)
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := New(NewMemoryJobStore(), WithLogger(testLogger()))

	assert.ErrorIs(t, s.Shutdown(true), ErrNotRunning)
	assert.ErrorIs(t, s.RunJob("x"), ErrNotRunning)

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
	assert.ErrorIs(t, s.RunJob("missing"), ErrJobNotFound)
	require.NoError(t, s.Shutdown(false))
}

func TestScheduler_AddWhileRunning(t *testing.T) {
	s := New(NewMemoryJobStore(), WithLogger(testLogger()))
	require.NoError(t, s.Start())
	defer s.Shutdown(true)

	fired := make(chan struct{}, 1)
	job, err := s.AddJob(intervalSpec("late", 10*time.Millisecond, func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}))
	require.NoError(t, err)
	assert.False(t, job.NextRunAt.IsZero())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job added while running never fired")
	}
}

func TestScheduler_StoredJobWithoutFunc(t *testing.T) {
	store := NewMemoryJobStore()
	require.NoError(t, store.AddJob(&Job{ID: "orphan", FuncRef: "gone", Trigger: TriggerInterval, Interval: time.Second}))

	s := New(store, WithLogger(testLogger()))
	require.NoError(t, s.Start())
	defer s.Shutdown(true)

	err := s.RunJob("orphan")
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs, err := s.Jobs()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestScheduler_RemoveJob(t *testing.T) {
	s := New(NewMemoryJobStore(), WithLogger(testLogger()))
	_, err := s.AddJob(intervalSpec("run_loop", time.Hour, func(context.Context) error { return nil }))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Shutdown(true)

	require.NoError(t, s.RemoveJob("run_loop"))
	assert.ErrorIs(t, s.RunJob("run_loop"), ErrJobNotFound)
	assert.ErrorIs(t, s.RemoveJob("run_loop"), ErrJobNotFound)
}
