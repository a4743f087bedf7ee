package channels

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"opsagent/pkg/api"
	"opsagent/pkg/config"
	"opsagent/pkg/persistence"

	jsoniter "github.com/json-iterator/go"
)

// RunLister lists recently recorded task runs.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]persistence.Run, error)
}

// Deps carries the shared resources a channel may need. Every field is
// optional except System.
type Deps struct {
	System  *config.SystemConfig
	Runs    RunLister    // nil when no run store is configured
	Metrics http.Handler // nil disables /metrics
}

// ChannelFactory defines the abstract interface for platform-specific
// channel creators. This allows the system to support new platforms
// without modifying the core gateway logic.
type ChannelFactory interface {
	// Create instantiates a concrete Channel implementation using the
	// provided configuration and shared system resources.
	Create(rawConfig jsoniter.RawMessage, deps *Deps) (api.Channel, error)
}

// channelRegistry maps platform names (e.g., "telegram") to their factories.
var (
	registryMu      sync.RWMutex
	channelRegistry = make(map[string]ChannelFactory)
)

// RegisterChannel adds a new ChannelFactory to the global internal registry.
// This is typically called during the package's init() phase.
func RegisterChannel(name string, factory ChannelFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered ChannelFactory by platform name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := channelRegistry[name]
	return f, ok
}

// RegisteredChannels lists the registered platform names in sorted order.
func RegisteredChannels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(channelRegistry))
	for name := range channelRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
