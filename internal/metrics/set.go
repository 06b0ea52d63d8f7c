package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "janitor"

// Set is the application's metric families, written to this process's shard
type Set struct {
	JobRuns     *CounterVec
	JobDuration *HistogramVec
	JobLastRun  *GaugeVec
	JobsRunning *GaugeVec
	Uploads     *CounterVec

	HTTPRequests *CounterVec
	HTTPDuration *HistogramVec
}

// NewSet declares the application families on shard
func NewSet(shard *Shard) *Set {
	return &Set{
		JobRuns: shard.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by outcome.",
		}, []string{"job", "status"}),
		JobDuration: shard.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job run duration.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		JobLastRun: shard.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_run_timestamp_seconds",
			Help:      "Unix time of the last finished job run.",
		}, []string{"job"}),
		JobsRunning: shard.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Job runs currently in progress.",
		}, []string{"job"}),
		Uploads: shard.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_uploaded_total",
			Help:      "Documents accepted by the upload registry.",
		}, []string{"set"}),
		HTTPRequests: shard.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status_code"}),
		HTTPDuration: shard.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
		}, []string{"method", "route"}),
	}
}

// ObserveRequest records one finished HTTP request
func (s *Set) ObserveRequest(method, route string, status int, duration time.Duration) error {
	return errors.Join(
		s.HTTPRequests.Inc(method, route, strconv.Itoa(status)),
		s.HTTPDuration.Observe(duration.Seconds(), method, route),
	)
}
