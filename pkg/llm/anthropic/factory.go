package anthropic

import (
	"fmt"
	"log/slog"

	"opsagent/pkg/config"
	"opsagent/pkg/llm"
)

// AnthropicFactory handles creation of Anthropic Clients
type AnthropicFactory struct{}

// Create implements ProviderFactory. One client is created per model and key.
func (f *AnthropicFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("anthropic group requires at least one api key")
	}

	var clients []llm.LLMClient
	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			client, err := NewClient(key, model, cfg.BaseURL)
			if err != nil {
				slog.Error("Failed to create Anthropic client", "model", model, "error", err)
				continue
			}
			client.SetDebug(sys.DebugResponses)
			clients = append(clients, client)
		}
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider(llm.ProviderAnthropic, &AnthropicFactory{})
}
