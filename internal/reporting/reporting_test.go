package reporting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNew_Noop(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{"no dsn", ""},
		{"invalid dsn", "not a dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Options{DSN: tt.dsn}, discard)
			assert.IsType(t, Noop{}, r)
			assert.False(t, r.Enabled())
			assert.True(t, r.Flush(time.Millisecond))

			h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
			r.CaptureError(context.Background(), errors.New("ignored"))
			assert.NotNil(t, r.Middleware(h))
		})
	}
}

func TestSentryReporter_Capture(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	r := New(Options{
		DSN: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event)
			return nil
		},
	}, discard)
	require.True(t, r.Enabled())

	r.CaptureError(context.Background(), errors.New("job failed"))
	r.CaptureError(context.Background(), nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "job failed", events[0].Exception[0].Value)
}

func TestSentryReporter_MiddlewareRepanics(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	r := New(Options{
		DSN: "https://public@sentry.example.com/1",
		BeforeSend: func(*sentry.Event, *sentry.EventHint) *sentry.Event {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		},
	}, discard)

	h := r.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	assert.Panics(t, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
