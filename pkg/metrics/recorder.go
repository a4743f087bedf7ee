// Package metrics records structured-call, cache, tool and task metrics.
package metrics

import "time"

// Recorder defines the interface for recording engine metrics.
type Recorder interface {
	// ObserveLLMAttempt records one structured model call attempt.
	// outcome is one of "success", "rate_limited", "quota", "error".
	ObserveLLMAttempt(shape, outcome string, promptTokens int, duration time.Duration)

	// IncRateLimitBackoff counts a backoff sleep after a throttled call.
	IncRateLimitBackoff(shape string)

	// ObserveCache records a cache lookup for a shape.
	ObserveCache(shape string, hit bool)

	// ObserveTool records one tool execution.
	ObserveTool(tool string, success bool, duration time.Duration)

	// ObserveTask records one orchestrated task.
	// path is "fast", "accepted", "repaired" or "refinalized"; status is
	// "success" or "error".
	ObserveTask(path, status string, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveLLMAttempt(_, _ string, _ int, _ time.Duration) {}

func (n *NoopRecorder) IncRateLimitBackoff(_ string) {}

func (n *NoopRecorder) ObserveCache(_ string, _ bool) {}

func (n *NoopRecorder) ObserveTool(_ string, _ bool, _ time.Duration) {}

func (n *NoopRecorder) ObserveTask(_, _ string, _ time.Duration) {}

// OrNop returns r, or a no-op recorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop()
	}
	return r
}
