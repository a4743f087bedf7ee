package openailm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"opsagent/pkg/config"
	"opsagent/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func TestGenerateSendsJSONModeAndZeroTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"steps\": []}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
		}`))
	}))
	defer srv.Close()

	c, err := NewClient("openai", "sk-test", "gpt-4o-mini", srv.URL)
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "plan this", llm.GenerateOptions{Temperature: 0, JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"steps": []}`, out)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, float64(0), body["temperature"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
}

func TestGenerateClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	c, err := NewClient("openai", "sk-test", "gpt-4o-mini", srv.URL)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p", llm.GenerateOptions{JSONMode: true})
	require.Error(t, err)
	assert.True(t, llm.IsRateLimited(err))

	var le *llm.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, http.StatusTooManyRequests, le.StatusCode)
}

func TestFactoryBuildsModelKeyProduct(t *testing.T) {
	clients, err := (&OpenAIFactory{}).Create(llm.ProviderGroupConfig{
		Type:    llm.ProviderOpenAI,
		APIKeys: []string{"k1", "k2"},
		Models:  []string{"gpt-4o-mini", "gpt-4o"},
	}, config.DefaultSystemConfig())
	require.NoError(t, err)
	assert.Len(t, clients, 4)
}

func TestFactoryRequirements(t *testing.T) {
	sys := config.DefaultSystemConfig()

	_, err := (&OpenAIFactory{}).Create(llm.ProviderGroupConfig{APIKeys: []string{"k"}}, sys)
	assert.Error(t, err)

	_, err = (&OpenAIFactory{}).Create(llm.ProviderGroupConfig{Models: []string{"m"}}, sys)
	assert.Error(t, err)

	clients, err := (&OpenAIFactory{}).Create(llm.ProviderGroupConfig{
		Models:  []string{"llama3"},
		BaseURL: "http://localhost:8080/v1",
	}, sys)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}
