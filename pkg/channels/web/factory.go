package web

import (
	"fmt"

	"opsagent/pkg/api"
	"opsagent/pkg/channels"

	jsoniter "github.com/json-iterator/go"
)

// DefaultPort is used when the web config does not set one.
const DefaultPort = 8000

// WebFactory 負責建立 Web Channels
type WebFactory struct{}

// Create 實作 ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, deps *channels.Deps) (api.Channel, error) {
	// 設定預設 Port
	cfg := WebConfig{Port: DefaultPort}

	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}

	if deps == nil {
		deps = &channels.Deps{}
	}
	return NewWebChannel(cfg, deps.Runs, deps.Metrics), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
