package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"opsagent/pkg/metrics"
	"opsagent/pkg/schema"
)

// DefaultTimeout bounds one tool invocation when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// Executor runs plan steps against a registry. A failing step becomes a
// failed ToolResult; Execute never returns an error.
type Executor struct {
	registry *ToolRegistry
	timeout  time.Duration
	metrics  metrics.Recorder
}

// NewExecutor creates an executor. A non-positive timeout uses DefaultTimeout.
func NewExecutor(registry *ToolRegistry, timeout time.Duration, rec metrics.Recorder) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		registry: registry,
		timeout:  timeout,
		metrics:  metrics.OrNop(rec),
	}
}

// Registry returns the executor's tool registry.
func (e *Executor) Registry() *ToolRegistry {
	return e.registry
}

// Execute runs steps in order and returns one result per step.
func (e *Executor) Execute(ctx context.Context, steps []schema.PlanStep) []schema.ToolResult {
	results := make([]schema.ToolResult, 0, len(steps))
	for _, step := range steps {
		results = append(results, e.run(ctx, step))
	}
	return results
}

func (e *Executor) run(ctx context.Context, step schema.PlanStep) schema.ToolResult {
	input := CopyInput(step.Input)

	tool, err := e.registry.Resolve(step.Tool)
	if err != nil {
		slog.WarnContext(ctx, "Plan referenced an unknown tool", "tool", step.Tool)
		e.metrics.ObserveTool(step.Tool, false, 0)
		return failed(step.Tool, input, ErrUnknownTool.Error())
	}

	if n, ok := tool.(InputNormalizer); ok {
		input = n.NormalizeInput(input)
	}

	start := time.Now()
	output, err := e.invoke(ctx, tool, input)
	elapsed := time.Since(start)
	e.metrics.ObserveTool(step.Tool, err == nil, elapsed)

	if err != nil {
		slog.WarnContext(ctx, "Tool failed", "tool", step.Tool, "duration", elapsed, "error", err)
		return failed(step.Tool, input, err.Error())
	}
	if output == nil {
		output = map[string]any{}
	}
	slog.InfoContext(ctx, "Tool executed", "tool", step.Tool, "duration", elapsed)
	return schema.ToolResult{Tool: step.Tool, Input: input, Success: true, Output: output}
}

// invoke calls the tool under the per-tool timeout and turns a panic into an
// error.
func (e *Executor) invoke(ctx context.Context, tool Tool, input map[string]any) (output map[string]any, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("%s panicked: %v", tool.Name(), r)
		}
	}()

	output, err = tool.Invoke(ctx, input)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = fmt.Errorf("%s timed out after %s", tool.Name(), e.timeout)
	}
	return output, err
}

func failed(tool string, input map[string]any, msg string) schema.ToolResult {
	return schema.ToolResult{
		Tool:    tool,
		Input:   input,
		Success: false,
		Output:  map[string]any{"error": msg},
	}
}
