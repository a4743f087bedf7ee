package structured

import (
	"testing"

	"opsagent/pkg/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"plain object", `{"a": 1}`, map[string]any{"a": float64(1)}},
		{"fenced", "```json\n{\"a\": 1}\n```", map[string]any{"a": float64(1)}},
		{"bare fence", "```\n[1]\n```", []any{float64(1)}},
		{"empty", "  ", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePayload(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parsePayload("{oops")
	assert.Error(t, err)
}

func TestShapeAndFieldIntrospection(t *testing.T) {
	assert.Equal(t, "Plan", shapeName[schema.Plan]())
	assert.Equal(t, "FinalResponse", shapeName[*schema.FinalResponse]())

	assert.True(t, hasJSONField[schema.Plan]("steps"))
	assert.False(t, hasJSONField[schema.FinalResponse]("steps"))
	assert.False(t, hasJSONField[map[string]any]("steps"))
}

func TestDecodeUnboundShapeKeepsPayload(t *testing.T) {
	v, plain, err := decode[map[string]any]("map", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, v)
	assert.Equal(t, map[string]any{"k": "v"}, plain)
}

func TestDecodeRejectsNonObjectForBoundShape(t *testing.T) {
	_, _, err := decode[schema.Plan]("Plan", "just text")
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "expected an object, got a string")
}
