package config

import (
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestDefaultSystemConfig(t *testing.T) {
	sys := DefaultSystemConfig()
	assert.Equal(t, 3, sys.MaxRetries)
	assert.Equal(t, 2000, sys.RetryDelayMs)
	assert.True(t, sys.EnableCache)
	assert.Equal(t, 3600, sys.CacheTTLSeconds)
	assert.Equal(t, 0, sys.CacheSweepIntervalMs)
	assert.Equal(t, "info", sys.LogLevel)
}

func TestLoadSystemConfigMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, DefaultSystemConfig(), LoadSystemConfig(filepath.Join(dir, "nope.json")))

	bad := writeFile(t, dir, "system.json", "{not json")
	assert.Equal(t, DefaultSystemConfig(), LoadSystemConfig(bad))
}

func TestLoadSystemConfigPartialOverride(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "system.json", `{"max_retries": 5, "log_level": "debug"}`)

	sys := LoadSystemConfig(p)
	assert.Equal(t, 5, sys.MaxRetries)
	assert.Equal(t, "debug", sys.LogLevel)
	assert.Equal(t, 2000, sys.RetryDelayMs)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := &Config{}
	sys := DefaultSystemConfig()

	err := ApplyEnv(cfg, sys, envMap(map[string]string{
		"GEMINI_API_KEY":  "key-1",
		"LLM_MAX_RETRIES": "4",
		"LLM_RETRY_DELAY": "0.5",
		"ENABLE_CACHE":    "false",
		"CACHE_TTL":       "60",
		"GITHUB_TOKEN":    "gh",
	}))
	require.NoError(t, err)

	assert.Equal(t, 4, sys.MaxRetries)
	assert.Equal(t, 500, sys.RetryDelayMs)
	assert.False(t, sys.EnableCache)
	assert.Equal(t, 60, sys.CacheTTLSeconds)
	assert.Equal(t, "gh", cfg.Tools.GitHubToken)
	assert.JSONEq(t, `[{"type":"gemini","api_keys":["key-1"],"models":["gemini-1.5-flash"]}]`, string(cfg.LLM))
	assert.JSONEq(t, `{"port":8000}`, string(cfg.Channels["web"]))
}

func TestApplyEnvKeepsExplicitLLM(t *testing.T) {
	cfg := &Config{LLM: []byte(`[{"type":"ollama","models":["llama3"]}]`)}
	require.NoError(t, ApplyEnv(cfg, DefaultSystemConfig(), envMap(map[string]string{"GEMINI_API_KEY": "k"})))
	assert.JSONEq(t, `[{"type":"ollama","models":["llama3"]}]`, string(cfg.LLM))
}

func TestApplyEnvPortMergesWebConfig(t *testing.T) {
	cfg := &Config{Channels: map[string]jsoniter.RawMessage{
		"web": jsoniter.RawMessage(`{"port":1,"runs_limit":10}`),
	}}
	require.NoError(t, ApplyEnv(cfg, DefaultSystemConfig(), envMap(map[string]string{"PORT": "9000"})))
	assert.JSONEq(t, `{"port":9000,"runs_limit":10}`, string(cfg.Channels["web"]))
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	err := ApplyEnv(&Config{}, DefaultSystemConfig(), envMap(map[string]string{"LLM_MAX_RETRIES": "three"}))
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "config.yaml", `
llm:
  - type: openai
    api_keys: ["sk-test"]
    models: ["gpt-4o-mini"]
channels:
  web:
    port: 9100
tools:
  github_base_url: http://localhost:1234
run_store_path: runs.db
`)
	sysPath := writeFile(t, dir, "system.yaml", "max_retries: 2\n")

	cfg, sys, err := Load(app, sysPath)
	require.NoError(t, err)
	assert.Equal(t, 2, sys.MaxRetries)
	assert.Equal(t, "runs.db", cfg.RunStorePath)
	assert.Equal(t, "http://localhost:1234", cfg.Tools.GitHubBaseURL)
	assert.JSONEq(t, `{"port":9100}`, string(cfg.Channels["web"]))
	assert.Contains(t, string(cfg.LLM), "gpt-4o-mini")
}

func TestLoadMissingLLM(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "config.json", `{"channels": {}}`)
	t.Setenv("GEMINI_API_KEY", "")

	_, _, err := Load(app, filepath.Join(dir, "system.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm")
}
