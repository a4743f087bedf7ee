package gateway

import (
	"fmt"

	"opsagent/pkg/api"
	"opsagent/pkg/monitor"
)

// GatewayBuilder provides a fluent builder pattern interface for constructing
// and initializing a GatewayManager with all its necessary dependencies.
//
// All components (channels, handler) are pre-built and injected as
// instances; the Builder simply assembles and starts them.
type GatewayBuilder struct {
	gw       *GatewayManager    // The GatewayManager instance being constructed
	monitor  monitor.Monitor    // Monitoring implementation to be injected
	handler  api.GatewayHandler // Message handler and task runner
	channels []api.Channel      // Pre-built channel instances to register
}

// NewGatewayBuilder creates a fresh GatewayBuilder instance and allocates
// an internal GatewayManager to be configured.
func NewGatewayBuilder() *GatewayBuilder {
	return &GatewayBuilder{
		gw: NewGatewayManager(),
	}
}

// Manager returns the manager under construction, so it can be registered
// as a stage observer before Build.
func (b *GatewayBuilder) Manager() *GatewayManager {
	return b.gw
}

// WithMonitor injects a monitoring implementation into the builder.
// This monitor will be started automatically during the Build() process.
func (b *GatewayBuilder) WithMonitor(m monitor.Monitor) *GatewayBuilder {
	b.monitor = m
	return b
}

// WithChannel adds pre-built channel instances to the gateway.
func (b *GatewayBuilder) WithChannel(channels ...api.Channel) *GatewayBuilder {
	b.channels = append(b.channels, channels...)
	return b
}

// WithHandler injects the message handler. It also serves synchronous task
// requests and receives the gateway as its responder.
func (b *GatewayBuilder) WithHandler(h api.GatewayHandler) *GatewayBuilder {
	b.handler = h
	return b
}

// Build finalizes the configuration, injects all dependencies into the
// GatewayManager, registers all channels, and starts everything.
// Returns the fully operational GatewayManager or an error if any stage fails.
func (b *GatewayBuilder) Build() (*GatewayManager, error) {
	// 1. Initialize and start the monitoring service
	if b.monitor != nil {
		b.gw.SetMonitor(b.monitor)
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	// 2. Register all pre-built channels
	for _, c := range b.channels {
		b.gw.Register(c)
	}

	// 3. Wire the handler both ways
	if b.handler != nil {
		b.handler.SetResponder(b.gw)
		b.gw.SetMessageHandler(b.handler.OnMessage)
		b.gw.SetTaskRunner(b.handler)
	}

	// 4. Start all registered channels
	if err := b.gw.StartAll(); err != nil {
		return nil, fmt.Errorf("failed to start channels: %w", err)
	}

	return b.gw, nil
}
