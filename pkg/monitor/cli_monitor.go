package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"

	"opsagent/pkg/api"

	"golang.org/x/term"
)

// CLIMonitor implements the Monitor interface, providing a direct
// terminal-based view of tasks and their stages across all channels.
type CLIMonitor struct {
	writer io.Writer // The output destination, typically os.Stdout.
	color  bool      // Emit ANSI colors; only when writing to a terminal.
	mu     sync.Mutex
}

// NewCLIMonitor creates a new CLI monitor
func NewCLIMonitor() *CLIMonitor {
	return &CLIMonitor{
		writer: os.Stdout,
		color:  term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// NewWriterMonitor creates a monitor writing plain text to w.
func NewWriterMonitor(w io.Writer) *CLIMonitor {
	return &CLIMonitor{writer: w}
}

// Start starts the CLI monitor
func (m *CLIMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	fmt.Fprintln(m.writer, "CLI Monitor Active - tasks and stages from all channels appear here")
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	return nil
}

// Stop stops the CLI monitor
func (m *CLIMonitor) Stop() error {
	return nil
}

// OnMessage receives and displays a monitoring message
func (m *CLIMonitor) OnMessage(msg MonitorMessage) {
	timestamp := msg.Timestamp.Format("2006-01-02 15:04:05")

	var displayMsg string
	if msg.MessageType == "RESULT" {
		displayMsg = fmt.Sprintf("[AI -> %s/%s] %s", msg.ChannelID, msg.Username, msg.Content)
	} else {
		displayMsg = fmt.Sprintf("[%s/%s] %s", msg.ChannelID, msg.Username, msg.Content)
	}

	m.print(timestamp, displayMsg)
}

// OnStage prints one line per orchestration stage.
func (m *CLIMonitor) OnStage(ev api.StageEvent) {
	timestamp := ev.Timestamp.Format("2006-01-02 15:04:05")

	status := "ok"
	if !ev.Success {
		status = "FAIL"
	}
	line := fmt.Sprintf("[%s] %-16s %-4s %s", shortID(ev.TaskID), ev.Stage, status, ev.Detail)
	if m.color && !ev.Success {
		line = "\033[31m" + line + "\033[0m"
	}
	m.print(timestamp, line)
}

func (m *CLIMonitor) print(timestamp, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.color {
		// Use gray color for timestamp
		fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n", timestamp, line)
		return
	}
	fmt.Fprintf(m.writer, "[%s] %s\n", timestamp, line)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
