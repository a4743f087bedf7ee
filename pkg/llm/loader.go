package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"opsagent/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// NewFromConfig 根據設定檔建立 LLM Client
func NewFromConfig(rawLLM jsoniter.RawMessage, system *config.SystemConfig) (LLMClient, error) {
	var (
		allAtomicClients []LLMClient
		groupErrs        []error
	)

	if len(rawLLM) == 0 {
		return nil, fmt.Errorf("missing 'llm' config")
	}
	if system == nil {
		system = config.DefaultSystemConfig()
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %w", err)
	}

	for i, group := range groups {
		slog.Info("Loading LLM group", "index", i, "type", group.Type, "models", len(group.Models))

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type", "type", group.Type, "known", RegisteredProviders())
			groupErrs = append(groupErrs, fmt.Errorf("group %d: unknown provider type %q", i, group.Type))
			continue
		}

		clients, err := factory.Create(group, system)
		if err != nil {
			slog.Warn("Failed to create clients", "type", group.Type, "error", err)
			groupErrs = append(groupErrs, fmt.Errorf("group %d (%s): %w", i, group.Type, err))
			continue
		}

		allAtomicClients = append(allAtomicClients, clients...)
	}

	if len(allAtomicClients) == 0 {
		if len(groupErrs) == 0 {
			return nil, fmt.Errorf("no LLM clients could be initialized")
		}
		return nil, fmt.Errorf("no LLM clients could be initialized: %w", errors.Join(groupErrs...))
	}

	slog.Info("LLM clients initialized", "count", len(allAtomicClients))

	// 只有一個就不需要 fallback 包裝
	if len(allAtomicClients) == 1 {
		return allAtomicClients[0], nil
	}

	// 否則包裹在 FallbackClient 中，並代入系統層級的重試設定
	return &FallbackClient{
		Clients:    allAtomicClients,
		MaxRetries: system.MaxRetries,
		RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
	}, nil
}
