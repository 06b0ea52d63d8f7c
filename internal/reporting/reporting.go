// Package reporting forwards unexpected errors to Sentry when a DSN is
// configured. Without one every call is a no-op.
package reporting

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

// Reporter captures errors for an external tracker
type Reporter interface {
	CaptureError(ctx context.Context, err error)
	Middleware(next http.Handler) http.Handler
	Flush(timeout time.Duration) bool
	Enabled() bool
}

// Options configures the Sentry client
type Options struct {
	DSN         string
	Environment string
	Release     string
	// BeforeSend can inspect or drop events; used by tests
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

// New returns a Sentry reporter, or a no-op one when DSN is empty or the
// client cannot be created. Reporting is optional and never fails startup.
func New(opts Options, logger *slog.Logger) Reporter {
	if opts.DSN == "" {
		return Noop{}
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		AttachStacktrace: true,
		BeforeSend:       opts.BeforeSend,
	})
	if err != nil {
		logger.Warn("error reporting disabled",
			slog.String("component", "reporting"),
			slog.String("error", err.Error()))
		return Noop{}
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	return &sentryReporter{
		hub: hub,
		handler: sentryhttp.New(sentryhttp.Options{
			Repanic: true,
		}),
	}
}

type sentryReporter struct {
	hub     *sentry.Hub
	handler *sentryhttp.Handler
}

func (r *sentryReporter) CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = r.hub
	}
	hub.CaptureException(err)
}

// Middleware attaches a request-scoped hub and reports panics before
// re-panicking to the recoverer
func (r *sentryReporter) Middleware(next http.Handler) http.Handler {
	inner := r.handler.Handle(next)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if sentry.GetHubFromContext(req.Context()) == nil {
			req = req.WithContext(sentry.SetHubOnContext(req.Context(), r.hub.Clone()))
		}
		inner.ServeHTTP(w, req)
	})
}

func (r *sentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

func (r *sentryReporter) Enabled() bool { return true }

// Noop discards everything
type Noop struct{}

func (Noop) CaptureError(context.Context, error)       {}
func (Noop) Middleware(next http.Handler) http.Handler { return next }
func (Noop) Flush(time.Duration) bool                  { return true }
func (Noop) Enabled() bool                             { return false }
