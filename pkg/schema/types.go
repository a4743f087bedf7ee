// Package schema holds the data model exchanged between the planner, the tool
// executor and the verifier, together with the normalization layer that maps
// loosely named model output onto it.
package schema

import (
	"fmt"
	"strings"
)

// PlanStep is a single tool invocation requested by the planner.
type PlanStep struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

// Bindings implements Bound.
func (PlanStep) Bindings() []Binding { return PlanStepBindings }

// Validate implements Validator.
func (s PlanStep) Validate() error {
	if strings.TrimSpace(s.Tool) == "" {
		return &ValidationError{Shape: "PlanStep", Problems: []string{"tool: must not be empty"}}
	}
	return nil
}

// Plan is the ordered list of steps produced for a task.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// Bindings implements Bound.
func (Plan) Bindings() []Binding { return PlanBindings }

// Validate implements Validator.
func (p Plan) Validate() error {
	var problems []string
	for i, step := range p.Steps {
		if strings.TrimSpace(step.Tool) == "" {
			problems = append(problems, fmt.Sprintf("steps[%d].tool: must not be empty", i))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Shape: "Plan", Problems: problems}
	}
	return nil
}

// ToolResult is the outcome of one executed step. Failed steps carry the
// error message under Output["error"].
type ToolResult struct {
	Tool    string         `json:"tool"`
	Input   map[string]any `json:"input"`
	Success bool           `json:"success"`
	Output  map[string]any `json:"output"`
}

// FinalResponse is the answer returned to the caller.
type FinalResponse struct {
	Answer  string         `json:"answer"`
	Data    map[string]any `json:"data"`
	Sources []string       `json:"sources"`
}

// Bindings implements Bound.
func (FinalResponse) Bindings() []Binding { return FinalResponseBindings }

// Recover implements Recoverable by running the tolerant answer extraction.
func (FinalResponse) Recover(payload any) (map[string]any, bool) {
	return ExtractFinal(payload), true
}

// VerificationResult is the verifier's judgement over the accumulated results.
type VerificationResult struct {
	IsComplete     bool           `json:"is_complete"`
	Missing        []string       `json:"missing"`
	SuggestedSteps []PlanStep     `json:"suggested_steps"`
	FinalResponse  *FinalResponse `json:"final_response"`
}

// Bindings implements Bound.
func (VerificationResult) Bindings() []Binding { return VerificationBindings }

// Answer returns the proposed answer, or "" when none was produced.
func (v VerificationResult) Answer() string {
	if v.FinalResponse == nil {
		return ""
	}
	return v.FinalResponse.Answer
}

// ToolNames lists the tool of every result, in order.
func ToolNames(results []ToolResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Tool)
	}
	return names
}
