package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func openTestShard(t *testing.T, dir string, pid int) *Shard {
	t.Helper()
	shard, err := openShardAt(ShardPath(dir, pid))
	require.NoError(t, err)
	t.Cleanup(func() { shard.Close() })
	return shard
}

func TestCollector_AggregatesShards(t *testing.T) {
	dir := t.TempDir()
	first := NewSet(openTestShard(t, dir, 101))
	second := NewSet(openTestShard(t, dir, 202))

	require.NoError(t, first.JobRuns.Inc("run_loop", "success"))
	require.NoError(t, first.JobRuns.Inc("run_loop", "success"))
	require.NoError(t, second.JobRuns.Inc("run_loop", "success"))
	require.NoError(t, second.JobRuns.Inc("run_loop", "error"))

	require.NoError(t, first.JobLastRun.Set(100, "run_loop"))
	require.NoError(t, second.JobLastRun.Set(200, "run_loop"))

	require.NoError(t, first.JobDuration.Observe(0.25, "run_loop"))
	require.NoError(t, second.JobDuration.Observe(2, "run_loop"))

	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, dir))
	body := scrape(t, reg)

	assert.Contains(t, body, `janitor_job_runs_total{job="run_loop",status="success"} 3`)
	assert.Contains(t, body, `janitor_job_runs_total{job="run_loop",status="error"} 1`)
	assert.Contains(t, body, `janitor_job_last_run_timestamp_seconds{job="run_loop",pid="101"} 100`)
	assert.Contains(t, body, `janitor_job_last_run_timestamp_seconds{job="run_loop",pid="202"} 200`)
	assert.Contains(t, body, `janitor_job_duration_seconds_bucket{job="run_loop",le="0.05"} 0`)
	assert.Contains(t, body, `janitor_job_duration_seconds_bucket{job="run_loop",le="0.1"} 0`)
	assert.Contains(t, body, `janitor_job_duration_seconds_bucket{job="run_loop",le="0.5"} 1`)
	assert.Contains(t, body, `janitor_job_duration_seconds_bucket{job="run_loop",le="5"} 2`)
	assert.Contains(t, body, `janitor_job_duration_seconds_count{job="run_loop"} 2`)
	assert.Contains(t, body, `janitor_job_duration_seconds_sum{job="run_loop"} 2.25`)
}

func TestCollector_EmptyDirectory(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, t.TempDir()))
	assert.Empty(t, scrape(t, reg))
}

func TestCollector_IgnoresStaleShardsAfterPrepare(t *testing.T) {
	t.Setenv(EnvMultiprocDir, "")
	dir := t.TempDir()

	stale, err := openShardAt(filepath.Join(dir, "metrics_999.db"))
	require.NoError(t, err)
	require.NoError(t, NewSet(stale).Uploads.Inc("documents"))
	require.NoError(t, stale.Close())

	_, err = PrepareDir(dir)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, dir))
	assert.NotContains(t, scrape(t, reg), "janitor_documents_uploaded_total")
}

func TestGaugeVec_AddAndSet(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(openTestShard(t, dir, 7))

	require.NoError(t, set.JobsRunning.Add(1, "run_loop"))
	require.NoError(t, set.JobsRunning.Add(1, "run_loop"))
	require.NoError(t, set.JobsRunning.Add(-1, "run_loop"))

	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, dir))
	assert.Contains(t, scrape(t, reg), `janitor_jobs_running{job="run_loop",pid="7"} 1`)
}

func TestInstruments_Errors(t *testing.T) {
	set := NewSet(openTestShard(t, t.TempDir(), 1))

	err := set.JobRuns.Inc("run_loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent label cardinality")

	assert.Error(t, set.JobRuns.Add(-1, "run_loop", "success"))
}

func TestSet_ObserveRequest(t *testing.T) {
	dir := t.TempDir()
	first := NewSet(openTestShard(t, dir, 101))
	second := NewSet(openTestShard(t, dir, 202))

	require.NoError(t, first.ObserveRequest("GET", "/api/v1/jobs", 200, 20*time.Millisecond))
	require.NoError(t, second.ObserveRequest("GET", "/api/v1/jobs", 200, 3*time.Second))
	require.NoError(t, second.ObserveRequest("POST", "/api/v1/jobs/{id}/run", 409, time.Millisecond))

	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, dir))
	body := scrape(t, reg)

	assert.Contains(t, body, `janitor_http_requests_total{method="GET",route="/api/v1/jobs",status_code="200"} 2`)
	assert.Contains(t, body, `janitor_http_requests_total{method="POST",route="/api/v1/jobs/{id}/run",status_code="409"} 1`)
	assert.Contains(t, body, `janitor_http_request_duration_seconds_bucket{method="GET",route="/api/v1/jobs",le="0.005"} 0`)
	assert.Contains(t, body, `janitor_http_request_duration_seconds_bucket{method="GET",route="/api/v1/jobs",le="0.025"} 1`)
	assert.Contains(t, body, `janitor_http_request_duration_seconds_count{method="GET",route="/api/v1/jobs"} 2`)
	assert.NotContains(t, body, `pid="101"`)
}
