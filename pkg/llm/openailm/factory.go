package openailm

import (
	"fmt"
	"log/slog"

	"opsagent/pkg/config"
	"opsagent/pkg/llm"
)

// OpenAIFactory handles creation of OpenAI Clients
type OpenAIFactory struct{}

// Create implements ProviderFactory. One client is built per model and key;
// a key may be omitted only for OpenAI-compatible servers set via base_url.
func (f *OpenAIFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("openai group requires at least one model")
	}

	keys := cfg.APIKeys
	if len(keys) == 0 {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai group requires an api key or a base_url")
		}
		keys = []string{""}
	}

	var clients []llm.LLMClient
	for _, model := range cfg.Models {
		for _, key := range keys {
			client, err := NewClient(llm.ProviderOpenAI, key, model, cfg.BaseURL)
			if err != nil {
				slog.Error("Failed to create OpenAI client", "model", model, "error", err)
				continue
			}
			client.SetDebug(sys.DebugResponses)
			clients = append(clients, client)
		}
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider(llm.ProviderOpenAI, &OpenAIFactory{})
}
