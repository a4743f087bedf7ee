package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	llmAttempts    *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec
	promptTokens   *prometheus.CounterVec
	backoffTotal   *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	tasksTotal     *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	gatherer       prometheus.Gatherer
}

// NewPrometheusRecorder registers the collectors on reg. A nil reg uses a
// fresh private registry so several recorders can coexist in tests.
func NewPrometheusRecorder(reg *prometheus.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &PrometheusRecorder{
		llmAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsagent_llm_attempts_total",
				Help: "Structured model call attempts by shape and outcome",
			},
			[]string{"shape", "outcome"},
		),
		llmDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsagent_llm_attempt_duration_seconds",
				Help:    "Duration of structured model call attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"shape"},
		),
		promptTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsagent_llm_prompt_tokens_total",
				Help: "Estimated prompt tokens sent to the model",
			},
			[]string{"shape"},
		),
		backoffTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsagent_llm_rate_limit_backoff_total",
				Help: "Backoff sleeps after rate limited model calls",
			},
			[]string{"shape"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsagent_cache_lookups_total",
				Help: "Response cache lookups by shape and result",
			},
			[]string{"shape", "result"},
		),
		toolExecutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsagent_tool_executions_total",
				Help: "Tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsagent_tool_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		tasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsagent_tasks_total",
				Help: "Orchestrated tasks by path and status",
			},
			[]string{"path", "status"},
		),
		taskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsagent_task_duration_seconds",
				Help:    "End-to-end task duration in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"path"},
		),
		gatherer: reg,
	}
}

func (p *PrometheusRecorder) ObserveLLMAttempt(shape, outcome string, promptTokens int, duration time.Duration) {
	p.llmAttempts.WithLabelValues(shape, outcome).Inc()
	p.llmDuration.WithLabelValues(shape).Observe(duration.Seconds())
	if promptTokens > 0 {
		p.promptTokens.WithLabelValues(shape).Add(float64(promptTokens))
	}
}

func (p *PrometheusRecorder) IncRateLimitBackoff(shape string) {
	p.backoffTotal.WithLabelValues(shape).Inc()
}

func (p *PrometheusRecorder) ObserveCache(shape string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(shape, result).Inc()
}

func (p *PrometheusRecorder) ObserveTool(tool string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.toolExecutions.WithLabelValues(tool, status).Inc()
	p.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObserveTask(path, status string, duration time.Duration) {
	p.tasksTotal.WithLabelValues(path, status).Inc()
	p.taskDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// Handler exposes the recorder's registry in the Prometheus text format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
