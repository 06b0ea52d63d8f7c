package scheduler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLStore(t *testing.T) *SQLJobStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLJobStore(db)
	require.NoError(t, err)
	return store
}

func TestJobStores(t *testing.T) {
	stores := map[string]func(*testing.T) JobStore{
		"memory": func(*testing.T) JobStore { return NewMemoryJobStore() },
		"sql":    func(t *testing.T) JobStore { return newSQLStore(t) },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

			job := &Job{
				ID:        "run_loop",
				FuncRef:   "run_loop",
				Trigger:   TriggerInterval,
				Interval:  30 * time.Second,
				CreatedAt: created,
				UpdatedAt: created,
			}
			require.NoError(t, store.AddJob(job))
			assert.ErrorIs(t, store.AddJob(job), ErrConflictingID)

			got, err := store.GetJob("run_loop")
			require.NoError(t, err)
			assert.Equal(t, TriggerInterval, got.Trigger)
			assert.Equal(t, 30*time.Second, got.Interval)
			assert.True(t, got.CreatedAt.Equal(created))
			assert.True(t, got.NextRunAt.IsZero())

			next := created.Add(time.Minute)
			job.Interval = time.Minute
			job.NextRunAt = next
			require.NoError(t, store.UpdateJob(job))

			got, err = store.GetJob("run_loop")
			require.NoError(t, err)
			assert.Equal(t, time.Minute, got.Interval)
			assert.True(t, got.NextRunAt.Equal(next))

			require.NoError(t, store.AddJob(&Job{ID: "another", FuncRef: "x", Trigger: TriggerInterval, Interval: time.Second, CreatedAt: created, UpdatedAt: created}))
			jobs, err := store.ListJobs()
			require.NoError(t, err)
			require.Len(t, jobs, 2)
			assert.Equal(t, "another", jobs[0].ID)
			assert.Equal(t, "run_loop", jobs[1].ID)

			require.NoError(t, store.RemoveJob("another"))
			assert.ErrorIs(t, store.RemoveJob("another"), ErrJobNotFound)
			_, err = store.GetJob("another")
			assert.ErrorIs(t, err, ErrJobNotFound)
			assert.ErrorIs(t, store.UpdateJob(&Job{ID: "missing"}), ErrJobNotFound)
		})
	}
}

func TestSQLJobStore_ReplaceAcrossSchedulers(t *testing.T) {
	store := newSQLStore(t)

	for i := 0; i < 2; i++ {
		s := New(store, WithLogger(testLogger()))
		_, err := s.AddJob(intervalSpec("run_loop", time.Minute, func(context.Context) error { return nil }))
		require.NoError(t, err)
	}

	jobs, err := store.ListJobs()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
