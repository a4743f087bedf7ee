package tools

import (
	"errors"
	"fmt"
	"sync"

	"opsagent/pkg/api"
)

// Re-export types from api package via aliases to maintain backward compatibility
type Tool = api.Tool
type InputNormalizer = api.InputNormalizer

// ErrUnknownTool is returned by Resolve for names that are not registered.
var ErrUnknownTool = errors.New("Unknown tool")

// ToolRegistry acts as a central inventory for all tools available to the planner.
// Tools are listed in registration order so the planning prompt is stable.
type ToolRegistry struct {
	mu    sync.RWMutex    // Protects concurrent access to the tools map
	tools map[string]Tool // Internal map of tool name to implementation
	order []string
}

var _ api.ToolRegistry = (*ToolRegistry)(nil)

// NewToolRegistry creates a new tool registry
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	tr := &ToolRegistry{
		tools: make(map[string]Tool),
	}
	for _, t := range tools {
		tr.Register(t)
	}
	return tr
}

// Register adds a tool to the registry, replacing one with the same name.
func (tr *ToolRegistry) Register(tool Tool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, exists := tr.tools[tool.Name()]; !exists {
		tr.order = append(tr.order, tool.Name())
	}
	tr.tools[tool.Name()] = tool
}

// Unregister removes a tool from the registry
func (tr *ToolRegistry) Unregister(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, exists := tr.tools[name]; !exists {
		return
	}
	delete(tr.tools, name)
	for i, n := range tr.order {
		if n == name {
			tr.order = append(tr.order[:i], tr.order[i+1:]...)
			break
		}
	}
}

// Get retrieves a tool by name
func (tr *ToolRegistry) Get(name string) (Tool, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	tool, ok := tr.tools[name]
	return tool, ok
}

// Resolve is Get with the unknown name as an explicit error.
func (tr *ToolRegistry) Resolve(name string) (Tool, error) {
	tool, ok := tr.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return tool, nil
}

// GetAll returns all registered tools in registration order.
func (tr *ToolRegistry) GetAll() []Tool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	tools := make([]Tool, 0, len(tr.order))
	for _, name := range tr.order {
		tools = append(tools, tr.tools[name])
	}
	return tools
}
