package agent

import (
	"context"
	"log/slog"

	"opsagent/pkg/schema"
	"opsagent/pkg/structured"
	"opsagent/pkg/tools"
)

// Verifier checks tool results and composes the final response.
type Verifier struct {
	client   *structured.Client
	registry *tools.ToolRegistry
}

func NewVerifier(client *structured.Client, registry *tools.ToolRegistry) *Verifier {
	return &Verifier{client: client, registry: registry}
}

// Verify judges whether results satisfy task. A reply without a final
// response is never complete; FinalResponse is always non-nil on success.
func (v *Verifier) Verify(ctx context.Context, task string, plan schema.Plan, results []schema.ToolResult) (schema.VerificationResult, error) {
	system := verifierSystemPrompt(v.registry.GetAll())
	res, err := structured.ChatJSON[schema.VerificationResult](ctx, v.client, system, verifierUserPrompt(task, plan, results))
	if err != nil {
		return schema.VerificationResult{}, err
	}

	if res.FinalResponse == nil {
		res.IsComplete = false
		res.FinalResponse = &schema.FinalResponse{Data: map[string]any{}, Sources: []string{}}
	}
	slog.InfoContext(ctx, "Verification done",
		"complete", res.IsComplete, "missing", len(res.Missing), "suggested", len(res.SuggestedSteps))
	return res, nil
}

// Finalize turns the accumulated results into the final response.
func (v *Verifier) Finalize(ctx context.Context, task string, plan schema.Plan, results []schema.ToolResult) (schema.FinalResponse, error) {
	final, err := structured.ChatJSON[schema.FinalResponse](ctx, v.client, finalizerSystemPrompt, finalizerUserPrompt(task, results))
	if err != nil {
		return schema.FinalResponse{}, err
	}
	return final, nil
}
