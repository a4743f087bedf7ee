package api

import (
	"context"
)

// Tool defines a read-only data-fetching capability the planner may call.
// Invoke returns either an output mapping or an error; it must not panic on
// bad input.
type Tool interface {
	Name() string
	Description() string
	// InputShape is a JSON example of the accepted input, injected into the
	// planning prompt.
	InputShape() string
	Invoke(ctx context.Context, input map[string]any) (map[string]any, error)
}

// InputNormalizer is an optional Tool extension that rewrites input before
// dispatch (e.g. accepting an alias key). It receives a private copy.
type InputNormalizer interface {
	NormalizeInput(input map[string]any) map[string]any
}

// ToolRegistry defines the interface for managing and accessing tools.
type ToolRegistry interface {
	Register(tool Tool)
	Unregister(name string)
	Get(name string) (Tool, bool)
	GetAll() []Tool
}
