package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultGeminiModel is used when GEMINI_MODEL is not set.
const DefaultGeminiModel = "gemini-1.5-flash"

// Config defines the global application configuration structure.
// This structure maps directly to config.json (or config.yaml) and holds
// business-level settings like channel options and LLM provider choices.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the ordered list of provider groups in raw JSON. Groups are
	// tried in order; later groups are fallbacks.
	LLM jsoniter.RawMessage `json:"llm"`
	// Tools configures the external data sources the executor can reach.
	Tools ToolsConfig `json:"tools"`
	// RunStorePath is the SQLite file used to record completed runs.
	// Empty disables run history.
	RunStorePath string `json:"run_store_path"`
}

// ToolsConfig holds credentials and endpoints for the built-in tools.
// Empty URLs select the public endpoints.
type ToolsConfig struct {
	GitHubToken   string `json:"github_token"`
	GitHubBaseURL string `json:"github_base_url"`
	GeocodingURL  string `json:"geocoding_url"`
	ForecastURL   string `json:"forecast_url"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty (set GEMINI_API_KEY or configure 'llm')")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// reliability and technical behavior of the engine.
type SystemConfig struct {
	// MaxRetries is the number of attempts a structured LLM call makes
	// before giving up.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the base backoff (in milliseconds) after a rate-limit
	// failure. Attempt n waits RetryDelayMs * 2^n.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for a single
	// LLM request. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// ToolTimeoutMs bounds one tool invocation.
	ToolTimeoutMs int `json:"tool_timeout_ms"`
	// EnableCache toggles the response cache.
	EnableCache bool `json:"enable_cache"`
	// CacheTTLSeconds is how long a cached response stays valid.
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
	// CacheSweepIntervalMs enables a periodic purge of expired entries.
	// Zero leaves expiry purely lazy.
	CacheSweepIntervalMs int `json:"cache_sweep_interval_ms"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer responses will be split into multiple chunks.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// DebugResponses enables saving every raw LLM response to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugResponses bool `json:"debug_responses"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:           3,
		RetryDelayMs:         2000,
		LLMTimeoutMs:         60000,
		ToolTimeoutMs:        15000,
		EnableCache:          true,
		CacheTTLSeconds:      3600,
		OllamaDefaultURL:     "http://localhost:11434",
		TelegramMessageLimit: 4000,
		LogLevel:             "info",
	}
}

// Load reads the application config at appPath (.json, .yaml or .yml) and the
// system config at sysPath, then applies environment overrides. A missing
// app config is not an error as long as the environment supplies an LLM.
func Load(appPath, sysPath string) (*Config, *SystemConfig, error) {
	cfg := &Config{}

	appFile, err := os.ReadFile(appPath)
	switch {
	case err == nil:
		if err := decodeFile(appPath, appFile, cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// Environment-only setup.
	default:
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	sysCfg := LoadSystemConfig(sysPath)

	if err := ApplyEnv(cfg, sysCfg, os.Getenv); err != nil {
		return nil, nil, err
	}

	// Validate structure integrity
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, sysCfg, nil
}

// decodeFile parses JSON directly. YAML is decoded into generic values and
// re-encoded as JSON so that raw sections keep a single representation.
func decodeFile(path string, data []byte, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var generic map[string]any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return err
		}
		asJSON, err := json.Marshal(generic)
		if err != nil {
			return err
		}
		return json.Unmarshal(asJSON, out)
	default:
		return json.Unmarshal(data, out)
	}
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := decodeFile(path, file, cfg); err != nil {
		return DefaultSystemConfig() // Parse failed, use defaults
	}

	return cfg
}

// ApplyEnv overlays the supported environment variables. getenv is injected
// so tests do not touch the process environment.
func ApplyEnv(cfg *Config, sys *SystemConfig, getenv func(string) string) error {
	if v := getenv("LLM_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LLM_MAX_RETRIES %q: %w", v, err)
		}
		sys.MaxRetries = n
	}
	if v := getenv("LLM_RETRY_DELAY"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid LLM_RETRY_DELAY %q: %w", v, err)
		}
		sys.RetryDelayMs = int(secs * 1000)
	}
	if v := getenv("ENABLE_CACHE"); v != "" {
		sys.EnableCache = strings.EqualFold(v, "true")
	}
	if v := getenv("CACHE_TTL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL %q: %w", v, err)
		}
		sys.CacheTTLSeconds = n
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		sys.LogLevel = v
	}
	if v := getenv("GITHUB_TOKEN"); v != "" {
		cfg.Tools.GitHubToken = v
	}

	if key := getenv("GEMINI_API_KEY"); key != "" && len(cfg.LLM) == 0 {
		model := getenv("GEMINI_MODEL")
		if model == "" {
			model = DefaultGeminiModel
		}
		raw, err := json.Marshal([]map[string]any{{
			"type":     "gemini",
			"api_keys": []string{key},
			"models":   []string{model},
		}})
		if err != nil {
			return err
		}
		cfg.LLM = raw
	}

	if port := getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		if cfg.Channels == nil {
			cfg.Channels = make(map[string]jsoniter.RawMessage)
		}
		web := map[string]any{}
		if existing, ok := cfg.Channels["web"]; ok && len(existing) > 0 {
			if err := json.Unmarshal(existing, &web); err != nil {
				return fmt.Errorf("failed to parse web channel config: %w", err)
			}
		}
		web["port"] = n
		raw, err := json.Marshal(web)
		if err != nil {
			return err
		}
		cfg.Channels["web"] = raw
	}

	if len(cfg.Channels) == 0 {
		cfg.Channels = map[string]jsoniter.RawMessage{
			"web": jsoniter.RawMessage(`{"port":8000}`),
		}
	}
	return nil
}
