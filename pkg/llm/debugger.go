package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"opsagent/pkg/monitor"
)

// ResponseDebugger handles the creation and writing of debug logs for raw LLM
// responses. It centralizes the logic for directory creation, file naming,
// and safe writing.
type ResponseDebugger struct {
	file    *os.File
	enabled bool
}

// DebugRoot is the directory debug files are written under.
var DebugRoot = "debug"

// NewResponseDebugger creates a new debugger instance.
// It attempts to open the debug file immediately if enabled.
//
// Parameters:
//   - ctx: Context possibly carrying the task ID (see monitor.WithTaskID)
//   - provider: Name of the LLM provider (e.g., "gemini", "openai")
//   - enabled: Whether debugging is globally enabled
func NewResponseDebugger(ctx context.Context, provider string, enabled bool) *ResponseDebugger {
	if !enabled {
		return &ResponseDebugger{enabled: false}
	}

	// Base debug dir
	debugDir := filepath.Join(DebugRoot, "responses", provider)

	// If a task ID is in context, nest under it
	if taskID := monitor.TaskIDFrom(ctx); taskID != "" {
		debugDir = filepath.Join(DebugRoot, "responses", taskID, provider)
	}

	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Error("Failed to create debug directory", "dir", debugDir, "error", err)
		return &ResponseDebugger{enabled: false}
	}

	timestamp := time.Now().Format("20060102_150405.000000")
	filename := filepath.Join(debugDir, fmt.Sprintf("%s.log", timestamp))

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("Failed to open debug file", "file", filename, "error", err)
		return &ResponseDebugger{enabled: false}
	}

	slog.DebugContext(ctx, "Debug mode ON", "provider", provider, "file", filename)
	return &ResponseDebugger{
		file:    f,
		enabled: true,
	}
}

// Write appends raw data to the debug file if enabled.
// It includes a newline after the data.
func (d *ResponseDebugger) Write(data []byte) {
	if !d.enabled || d.file == nil {
		return
	}
	if _, err := d.file.Write(data); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
	d.file.WriteString("\n")
}

// WriteString appends a string to the debug file if enabled.
func (d *ResponseDebugger) WriteString(s string) {
	if !d.enabled || d.file == nil {
		return
	}
	if _, err := d.file.WriteString(s); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
	d.file.WriteString("\n")
}

// WriteJSON marshals v and appends it.
func (d *ResponseDebugger) WriteJSON(v any) {
	if !d.enabled || d.file == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal debug payload", "error", err)
		return
	}
	d.Write(data)
}

// Close closes the debug file handle.
func (d *ResponseDebugger) Close() {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
