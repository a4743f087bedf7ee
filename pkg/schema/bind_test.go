package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePriority(t *testing.T) {
	obj := map[string]any{
		"summary": "from summary",
		"message": "from message",
	}
	v, ok := Resolve(obj, []string{"answer", "summary", "message"})
	require.True(t, ok)
	assert.Equal(t, "from summary", v)
}

func TestResolveSkipsNullAndPrefersNonEmpty(t *testing.T) {
	obj := map[string]any{
		"answer":  "",
		"summary": nil,
		"result":  "real",
	}
	v, ok := Resolve(obj, []string{"answer", "summary", "result"})
	require.True(t, ok)
	assert.Equal(t, "real", v)

	v, ok = Resolve(map[string]any{"answer": ""}, []string{"answer", "summary"})
	require.True(t, ok)
	assert.Equal(t, "", v)

	_, ok = Resolve(map[string]any{"summary": nil}, []string{"answer", "summary"})
	assert.False(t, ok)
}

func TestNormalizePlanStepAliases(t *testing.T) {
	out, err := Normalize("PlanStep", map[string]any{
		"tool_name": "github_search",
		"arguments": map[string]any{"query": "fastapi"},
		"extra":     true,
	}, PlanStepBindings)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"tool":  "github_search",
		"input": map[string]any{"query": "fastapi"},
	}, out)
}

func TestNormalizePlanStepDefaultsInput(t *testing.T) {
	out, err := Normalize("PlanStep", map[string]any{"tool": "weather_current"}, PlanStepBindings)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out["input"])
}

func TestNormalizeReportsMissingRequired(t *testing.T) {
	_, err := Normalize("Plan", map[string]any{"foo": 1}, PlanBindings)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Plan", verr.Shape)
	assert.Equal(t, []string{"steps: field required"}, verr.Problems)
}

func TestNormalizeNestedSteps(t *testing.T) {
	out, err := Normalize("Plan", map[string]any{
		"plan": []any{
			map[string]any{"tool": "github_search", "input": map[string]any{"query": "go"}},
			map[string]any{"name": "weather_current", "params": map[string]any{"city": "Berlin"}},
		},
	}, PlanBindings)
	require.NoError(t, err)

	steps := out["steps"].([]any)
	require.Len(t, steps, 2)
	assert.Equal(t, "weather_current", steps[1].(map[string]any)["tool"])
	assert.Equal(t, map[string]any{"city": "Berlin"}, steps[1].(map[string]any)["input"])
}

func TestNormalizeNestedStepError(t *testing.T) {
	_, err := Normalize("Plan", map[string]any{
		"steps": []any{map[string]any{"input": map[string]any{}}},
	}, PlanBindings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps: [0]")
	assert.Contains(t, err.Error(), "tool: field required")
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"complete", true},
		{"  DONE ", true},
		{"Yes", true},
		{"ok", true},
		{"true", true},
		{"incomplete", false},
		{"partial", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.in))
		})
	}
}

func TestNormalizeVerification(t *testing.T) {
	out, err := Normalize("VerificationResult", map[string]any{
		"status":           "Complete",
		"additional_steps": []any{map[string]any{"tool": "weather_current", "input": map[string]any{"location": "Paris"}}},
		"answer":           "It is sunny.",
	}, VerificationBindings)
	require.NoError(t, err)

	assert.Equal(t, true, out["is_complete"])
	assert.Equal(t, []any{}, out["missing"])
	assert.Len(t, out["suggested_steps"], 1)
	assert.Equal(t, map[string]any{
		"answer":  "It is sunny.",
		"data":    map[string]any{},
		"sources": []any{},
	}, out["final_response"])
}

func TestNormalizeVerificationRejectsBadStatus(t *testing.T) {
	_, err := Normalize("VerificationResult", map[string]any{"is_complete": []any{}}, VerificationBindings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is_complete: expected a boolean")
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "plain", Stringify("plain"))
	assert.Equal(t, "42", Stringify(float64(42)))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
	assert.Equal(t, "", Stringify(nil))
}

func TestNormalizeVerificationNestedResponseWithoutAnswer(t *testing.T) {
	for name, final := range map[string]map[string]any{
		"absent": {"data": map[string]any{"repo": "x"}},
		"null":   {"answer": nil},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := Normalize("VerificationResult", map[string]any{
				"is_complete":    true,
				"final_response": final,
			}, VerificationBindings)
			require.NoError(t, err)

			resp := out["final_response"].(map[string]any)
			assert.Equal(t, "", resp["answer"])
			assert.Equal(t, []any{}, resp["sources"])
		})
	}
}
