package api

import (
	"context"
	"errors"
	"time"

	"opsagent/pkg/schema"
)

// TaskRequest is the inbound task contract shared by every channel.
type TaskRequest struct {
	Task string `json:"task"`
	// SkipVerification defaults to true when omitted.
	SkipVerification *bool `json:"skip_verification,omitempty"`
}

// Skip reports the effective skip-verification flag.
func (r TaskRequest) Skip() bool {
	if r.SkipVerification == nil {
		return true
	}
	return *r.SkipVerification
}

// TaskMetadata describes how a result was produced.
type TaskMetadata struct {
	Steps               []schema.PlanStep `json:"steps"`
	ToolsUsed           []string          `json:"tools_used"`
	VerificationSkipped bool              `json:"verification_skipped"`
}

// TaskResponse is the outbound task contract.
type TaskResponse struct {
	Result   schema.FinalResponse `json:"result"`
	Metadata TaskMetadata         `json:"metadata"`
}

// ErrorResponse is the body returned for a failed task.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ErrEmptyTask is returned for a request without task text.
var ErrEmptyTask = errors.New("task must not be empty")

// TaskRunner runs a single task end to end.
type TaskRunner interface {
	RunTask(ctx context.Context, req TaskRequest) (*TaskResponse, error)
}

// Stage names the orchestration step an event belongs to.
type Stage string

const (
	StagePlanned      Stage = "plan_created"
	StageStepExecuted Stage = "step_executed"
	StageVerified     Stage = "verified"
	StageRepaired     Stage = "repair_executed"
	StageFinalized    Stage = "finalized"
	StageFailed       Stage = "failed"
)

// StageEvent is emitted by the engine as a task moves through its stages.
type StageEvent struct {
	TaskID    string    `json:"task_id"`
	Stage     Stage     `json:"stage"`
	Task      string    `json:"task,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// StageObserver receives stage events. Implementations must not block.
type StageObserver interface {
	OnStage(ev StageEvent)
}
