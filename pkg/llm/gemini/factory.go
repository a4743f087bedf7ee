package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"opsagent/pkg/config"
	"opsagent/pkg/llm"
)

// GeminiFactory handles creation of Gemini Clients
type GeminiFactory struct{}

// Create implements ProviderFactory
func (f *GeminiFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("gemini group requires at least one api key")
	}
	models := cfg.Models
	if len(models) == 0 {
		models = []string{config.DefaultGeminiModel}
	}

	// Cartesian Product: Models x Keys (prioritize models)
	for _, model := range models {
		for _, key := range cfg.APIKeys {
			client, err := NewGeminiClient(context.Background(), key, model, cfg.BaseURL)
			if err != nil {
				slog.Error("Failed to create Gemini client", "model", model, "error", err)
				continue
			}
			client.SetDebug(sys.DebugResponses)
			clients = append(clients, client)
		}
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider(llm.ProviderGemini, &GeminiFactory{})
}
