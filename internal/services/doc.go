// Package services holds the logic between the HTTP handlers and the
// store, scheduler and upload registry.
//
// Handlers never talk to those subsystems directly. Each service takes its
// dependencies as small interfaces, so tests can substitute fakes:
//
//	JobService      - registered jobs, on-demand runs, run history
//	DocumentService - uploads, sheet inspection, document listing
//	HealthService   - component checks for GET /health
//
// Services return the sentinel errors in errors.go; handlers map them to
// API errors.
package services
