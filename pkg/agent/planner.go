package agent

import (
	"context"
	"log/slog"

	"opsagent/pkg/schema"
	"opsagent/pkg/structured"
	"opsagent/pkg/tools"
)

// Planner turns a task into a Plan.
type Planner struct {
	client   *structured.Client
	registry *tools.ToolRegistry
}

func NewPlanner(client *structured.Client, registry *tools.ToolRegistry) *Planner {
	return &Planner{client: client, registry: registry}
}

// Plan asks the model for the ordered tool steps needed for task.
func (p *Planner) Plan(ctx context.Context, task string) (schema.Plan, error) {
	system := plannerSystemPrompt(p.registry.GetAll())
	plan, err := structured.ChatJSON[schema.Plan](ctx, p.client, system, plannerUserPrompt(task))
	if err != nil {
		return schema.Plan{}, err
	}
	slog.InfoContext(ctx, "Plan created", "steps", len(plan.Steps))
	return plan, nil
}
