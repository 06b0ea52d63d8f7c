package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"janitor/internal/infrastructure"
)

// Component health states
const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
)

// Pinger checks a connection
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SchedulerState reports whether jobs are firing
type SchedulerState interface {
	Running() bool
}

// ClientCounter reports connected live-feed clients
type ClientCounter interface {
	ClientCount() int
}

// HealthDeps are the components HealthService checks. Nil members are
// skipped.
type HealthDeps struct {
	DB        Pinger
	Scheduler SchedulerState
	Clients   ClientCounter
	UploadDir string
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	deps      HealthDeps
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    float64                  `json:"uptime_seconds"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service
func NewHealthService(version string, deps HealthDeps, logger *slog.Logger) *HealthService {
	return &HealthService{
		version:   version,
		deps:      deps,
		startTime: time.Now(),
		logger:    infrastructure.WithComponent(logger, "health_service"),
	}
}

// HealthCheck checks every configured component. The overall status is
// unavailable when any component is.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Uptime:    time.Since(hs.startTime).Seconds(),
		Runtime: map[string]interface{}{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
		Services: make(map[string]ServiceHealth),
	}

	if hs.deps.DB != nil {
		status.Services["database"] = hs.checkDatabase(ctx)
	}
	if hs.deps.Scheduler != nil {
		status.Services["scheduler"] = hs.checkScheduler()
	}
	if hs.deps.Clients != nil {
		status.Services["websocket"] = ServiceHealth{
			Status:  StatusOK,
			Message: fmt.Sprintf("%d clients connected", hs.deps.Clients.ClientCount()),
		}
	}
	if hs.deps.UploadDir != "" {
		status.Services["uploads"] = hs.checkUploads()
	}

	for name, svc := range status.Services {
		if svc.Status != StatusOK {
			status.Status = StatusUnavailable
			hs.logger.WarnContext(ctx, "component unhealthy",
				slog.String("service", name),
				slog.String("message", svc.Message))
		}
	}
	return status
}

func (hs *HealthService) checkDatabase(ctx context.Context) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := hs.deps.DB.PingContext(ctx); err != nil {
		return ServiceHealth{Status: StatusUnavailable, Message: fmt.Sprintf("Database error: %v", err)}
	}
	return ServiceHealth{Status: StatusOK}
}

func (hs *HealthService) checkScheduler() ServiceHealth {
	if !hs.deps.Scheduler.Running() {
		return ServiceHealth{Status: StatusUnavailable, Message: "scheduler is not running"}
	}
	return ServiceHealth{Status: StatusOK}
}

// checkUploads reports the upload destination as healthy when it is absent
// (it is created on first upload) or a directory
func (hs *HealthService) checkUploads() ServiceHealth {
	info, err := os.Stat(hs.deps.UploadDir)
	switch {
	case os.IsNotExist(err):
		return ServiceHealth{Status: StatusOK, Message: "destination not created yet"}
	case err != nil:
		return ServiceHealth{Status: StatusUnavailable, Message: err.Error()}
	case !info.IsDir():
		return ServiceHealth{Status: StatusUnavailable, Message: fmt.Sprintf("%s is not a directory", hs.deps.UploadDir)}
	}
	return ServiceHealth{Status: StatusOK}
}
