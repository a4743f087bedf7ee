package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"opsagent/pkg/api"
	"opsagent/pkg/metrics"
	"opsagent/pkg/monitor"
	"opsagent/pkg/schema"
	"opsagent/pkg/structured"
	"opsagent/pkg/tools"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Path names the branch a task took through the engine.
type Path string

const (
	// PathFast: plan, execute, finalize.
	PathFast Path = "fast"
	// PathVerify: verification was requested but the task failed before a
	// branch was chosen.
	PathVerify Path = "verify"
	// PathAccepted: the verifier's final response was used as is.
	PathAccepted Path = "accepted"
	// PathRepaired: suggested steps were executed before finalizing.
	PathRepaired Path = "repaired"
	// PathRefinalized: the verifier gave no usable answer, so finalize ran.
	PathRefinalized Path = "refinalized"
)

// Outcome is the result of one task.
type Outcome struct {
	TaskID              string
	Result              schema.FinalResponse
	Steps               []schema.PlanStep
	Results             []schema.ToolResult
	ToolsUsed           []string
	VerificationSkipped bool
	Path                Path
	Duration            time.Duration
}

// Response converts the outcome into the outbound task contract.
func (o *Outcome) Response() *api.TaskResponse {
	steps := o.Steps
	if steps == nil {
		steps = []schema.PlanStep{}
	}
	toolsUsed := o.ToolsUsed
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	return &api.TaskResponse{
		Result: o.Result,
		Metadata: api.TaskMetadata{
			Steps:               steps,
			ToolsUsed:           toolsUsed,
			VerificationSkipped: o.VerificationSkipped,
		},
	}
}

// Engine drives plan, execute, then verify or finalize for each task. It
// holds no per-task state; concurrent Run calls share only the response
// cache inside the structured client.
type Engine struct {
	planner   *Planner
	executor  *tools.Executor
	verifier  *Verifier
	metrics   metrics.Recorder
	observers []api.StageObserver
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithObservers registers stage observers.
func WithObservers(obs ...api.StageObserver) EngineOption {
	return func(e *Engine) { e.observers = append(e.observers, obs...) }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) EngineOption {
	return func(e *Engine) { e.metrics = metrics.OrNop(r) }
}

// NewEngine builds an engine whose planner and verifier share client.
func NewEngine(client *structured.Client, executor *tools.Executor, opts ...EngineOption) *Engine {
	e := &Engine{
		planner:  NewPlanner(client, executor.Registry()),
		executor: executor,
		verifier: NewVerifier(client, executor.Registry()),
		metrics:  metrics.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes task. When skipVerification is set the task costs exactly two
// structured model calls (plan and finalize).
func (e *Engine) Run(ctx context.Context, task string, skipVerification bool) (*Outcome, error) {
	start := time.Now()

	taskID := monitor.TaskIDFrom(ctx)
	if taskID == "" {
		taskID = uuid.NewString()
		ctx = monitor.WithTaskID(ctx, taskID)
	}

	slog.InfoContext(ctx, "Task started", "skip_verification", skipVerification)

	out := &Outcome{TaskID: taskID, VerificationSkipped: skipVerification, Path: PathVerify}
	if skipVerification {
		out.Path = PathFast
	}
	err := e.run(ctx, task, out)
	out.Duration = time.Since(start)

	if err != nil {
		e.metrics.ObserveTask(string(out.Path), "error", out.Duration)
		e.emit(ctx, api.StageFailed, task, err.Error(), false)
		slog.ErrorContext(ctx, "Task failed", "path", out.Path, "duration", out.Duration, "error", err)
		return nil, err
	}

	e.metrics.ObserveTask(string(out.Path), "success", out.Duration)
	e.emit(ctx, api.StageFinalized, task, string(out.Path), true)
	slog.InfoContext(ctx, "Task finished", "path", out.Path, "tools", len(out.ToolsUsed), "duration", out.Duration)
	return out, nil
}

func (e *Engine) run(ctx context.Context, task string, out *Outcome) error {
	plan, err := e.planner.Plan(ctx, task)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	out.Steps = plan.Steps
	e.emit(ctx, api.StagePlanned, task, fmt.Sprintf("%d steps", len(plan.Steps)), true)

	results := e.execute(ctx, task, api.StageStepExecuted, plan.Steps)

	finalize := func() error {
		final, err := e.verifier.Finalize(ctx, task, plan, results)
		if err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
		out.Result = final
		return nil
	}

	defer func() {
		out.Results = results
		out.ToolsUsed = schema.ToolNames(results)
	}()

	if out.VerificationSkipped {
		return finalize()
	}

	verification, err := e.verifier.Verify(ctx, task, plan, results)
	if err != nil {
		return fmt.Errorf("verification: %w", err)
	}
	e.emit(ctx, api.StageVerified, task, fmt.Sprintf("complete=%t", verification.IsComplete), verification.IsComplete)

	switch {
	case !verification.IsComplete && len(verification.SuggestedSteps) > 0:
		out.Path = PathRepaired
		results = append(results, e.execute(ctx, task, api.StageRepaired, verification.SuggestedSteps)...)
		return finalize()

	case verification.Answer() == "":
		out.Path = PathRefinalized
		slog.WarnContext(ctx, "Verifier returned no answer, finalizing", "complete", verification.IsComplete)
		return finalize()

	default:
		out.Path = PathAccepted
		out.Result = *verification.FinalResponse
		return nil
	}
}

func (e *Engine) execute(ctx context.Context, task string, stage api.Stage, steps []schema.PlanStep) []schema.ToolResult {
	results := e.executor.Execute(ctx, steps)
	for _, r := range results {
		detail := r.Tool
		if !r.Success {
			detail = fmt.Sprintf("%s: %v", r.Tool, r.Output["error"])
		}
		e.emit(ctx, stage, task, detail, r.Success)
	}
	return results
}

func (e *Engine) emit(ctx context.Context, stage api.Stage, task, detail string, success bool) {
	if len(e.observers) == 0 {
		return
	}
	ev := api.StageEvent{
		TaskID:    monitor.TaskIDFrom(ctx),
		Stage:     stage,
		Task:      task,
		Detail:    detail,
		Success:   success,
		Timestamp: time.Now(),
	}
	for _, o := range e.observers {
		o.OnStage(ev)
	}
}
