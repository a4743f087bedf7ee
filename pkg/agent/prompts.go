package agent

import (
	"fmt"
	"strings"

	"opsagent/pkg/api"
	"opsagent/pkg/schema"
)

const planExample = `{"steps": [{"tool": "github_search", "input": {"query": "fastapi"}}, {"tool": "weather_current", "input": {"city": "Berlin"}}]}`

// plannerSystemPrompt lists the registered tools with their input shapes.
func plannerSystemPrompt(tools []api.Tool) string {
	var sb strings.Builder
	sb.WriteString("You are a planning agent. Given a task, create a step-by-step plan.\n\n")
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s Input: %s\n", t.Name(), t.Description(), t.InputShape())
	}
	sb.WriteString("\nReturn ONLY a JSON object with this exact structure:\n")
	sb.WriteString(`{"steps": [{"tool": "tool_name", "input": {...}}, ...]}`)
	sb.WriteString("\n\nExample:\n")
	sb.WriteString(planExample)
	return sb.String()
}

func plannerUserPrompt(task string) string {
	return fmt.Sprintf("Task: %s\n\nReturn the plan as JSON with 'steps' array:", task)
}

const verifierShape = `{"is_complete": true, "missing": ["what is still missing"], ` +
	`"suggested_steps": [{"tool": "tool_name", "input": {...}}], ` +
	`"final_response": {"answer": "human readable summary", "data": {"key": "value"}, "sources": ["API1"]}}`

// verifierSystemPrompt describes the verdict shape and the tools that may
// appear in suggested_steps.
func verifierSystemPrompt(tools []api.Tool) string {
	var sb strings.Builder
	sb.WriteString("You are the Verifier Agent. Check if the tool results are complete and correct. ")
	sb.WriteString("If anything is missing, set is_complete to false and propose additional steps using available tools. ")
	sb.WriteString("If the results are complete, write the final_response.\n\n")
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s Input: %s\n", t.Name(), t.Description(), t.InputShape())
	}
	sb.WriteString("\nReturn ONLY a JSON object with this exact structure:\n")
	sb.WriteString(verifierShape)
	return sb.String()
}

func verifierUserPrompt(task string, plan schema.Plan, results []schema.ToolResult) string {
	return fmt.Sprintf("Task: %s\n\nPlan: %s\n\nResults: %s", task, dump(plan), dump(results))
}

const finalizerSystemPrompt = "You are a response generator. Use the tool results to answer the user's task.\n\n" +
	"Return ONLY a JSON object with this exact structure:\n" +
	`{"answer": "human readable summary", "data": {"key": "value"}, "sources": ["API1", "API2"]}` + "\n\n" +
	"Example:\n" +
	`{"answer": "Found repo X with 1000 stars. Berlin weather is 10°C.", "data": {"repo": "owner/name", "temp": 10}, "sources": ["GitHub API", "Open-Meteo API"]}`

func finalizerUserPrompt(task string, results []schema.ToolResult) string {
	return fmt.Sprintf("Task: %s\n\nTool results: %s\n\nCreate a final response as JSON:", task, dump(results))
}

// dump renders v as compact JSON for embedding in a prompt.
func dump(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
