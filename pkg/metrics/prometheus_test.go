package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveLLMAttempt("Plan", "success", 120, 50*time.Millisecond)
	r.ObserveLLMAttempt("Plan", "rate_limited", 120, 10*time.Millisecond)
	r.IncRateLimitBackoff("Plan")
	r.ObserveCache("Plan", true)
	r.ObserveCache("Plan", false)
	r.ObserveCache("Plan", false)
	r.ObserveTool("weather_current", false, time.Second)
	r.ObserveTask("fast", "success", 2*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.llmAttempts.WithLabelValues("Plan", "success")))
	assert.Equal(t, float64(240), testutil.ToFloat64(r.promptTokens.WithLabelValues("Plan")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.backoffTotal.WithLabelValues("Plan")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.cacheLookups.WithLabelValues("Plan", "miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.toolExecutions.WithLabelValues("weather_current", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.tasksTotal.WithLabelValues("fast", "success")))
}

func TestPrometheusRecorderHandler(t *testing.T) {
	r := NewPrometheusRecorder(nil)
	r.ObserveTask("verified", "error", time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `opsagent_tasks_total{path="verified",status="error"} 1`)
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, &NoopRecorder{}, OrNop(nil))

	r := NewPrometheusRecorder(nil)
	assert.Same(t, r, OrNop(r))
}
