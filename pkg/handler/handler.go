package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"opsagent/pkg/agent"
	"opsagent/pkg/api"
	"opsagent/pkg/monitor"
	"opsagent/pkg/persistence"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const usage = "Send a task, e.g. \"Find a popular FastAPI repo and the weather in Berlin\".\n" +
	"Prefix it with /verify to double-check the results before answering."

// RunRecorder stores completed runs. *persistence.RunStore implements it.
type RunRecorder interface {
	Record(ctx context.Context, run persistence.Run) error
}

// TaskHandler connects the gateway to the engine. It serves synchronous
// requests (RunTask) and chat messages (OnMessage).
type TaskHandler struct {
	engine    *agent.Engine
	runs      RunRecorder
	timeout   time.Duration
	responder api.MessageResponder
	base      context.Context // parent of chat tasks, cancelled on shutdown
}

var _ api.GatewayHandler = (*TaskHandler)(nil)

// New creates a handler. runs may be nil; a zero timeout means no task
// deadline beyond the caller's context.
func New(engine *agent.Engine, runs RunRecorder, timeout time.Duration) *TaskHandler {
	return &TaskHandler{engine: engine, runs: runs, timeout: timeout, base: context.Background()}
}

// WithBaseContext sets the parent context of tasks started from chat
// messages. Cancelling it aborts those tasks.
func (h *TaskHandler) WithBaseContext(ctx context.Context) *TaskHandler {
	if ctx != nil {
		h.base = ctx
	}
	return h
}

// SetResponder implements api.ResponderAware.
func (h *TaskHandler) SetResponder(responder api.MessageResponder) {
	h.responder = responder
}

// RunTask implements api.TaskRunner.
func (h *TaskHandler) RunTask(ctx context.Context, req api.TaskRequest) (*api.TaskResponse, error) {
	task := strings.TrimSpace(req.Task)
	if task == "" {
		return nil, api.ErrEmptyTask
	}

	taskID := monitor.TaskIDFrom(ctx)
	if taskID == "" {
		taskID = uuid.NewString()
		ctx = monitor.WithTaskID(ctx, taskID)
	}
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := h.engine.Run(ctx, task, req.Skip())

	run := persistence.Run{
		ID:               taskID,
		Task:             task,
		SkipVerification: req.Skip(),
		DurationMs:       time.Since(start).Milliseconds(),
		CreatedAt:        start,
	}
	if err != nil {
		run.Error = err.Error()
	} else {
		run.Success = true
		run.Path = string(out.Path)
		run.Answer = out.Result.Answer
		run.ToolsUsed = out.ToolsUsed
	}
	h.record(ctx, run)

	if err != nil {
		return nil, err
	}
	return out.Response(), nil
}

func (h *TaskHandler) record(ctx context.Context, run persistence.Run) {
	if h.runs == nil {
		return
	}
	// The task context may already be past its deadline.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.runs.Record(recordCtx, run); err != nil {
		slog.WarnContext(ctx, "Failed to record run", "error", err)
	}
}

// OnMessage implements api.MessageProcessor for chat channels.
func (h *TaskHandler) OnMessage(msg *api.UnifiedMessage) {
	content := strings.TrimSpace(msg.Content)
	skip := msg.SkipVerification

	switch {
	case content == "/start" || content == "/help":
		h.reply(msg.Session, usage)
		return
	case content == "/verify" || strings.HasPrefix(content, "/verify "):
		content = strings.TrimSpace(strings.TrimPrefix(content, "/verify"))
		skip = false
	}

	if content == "" {
		h.reply(msg.Session, usage)
		return
	}

	if h.responder != nil {
		_ = h.responder.SendSignal(msg.Session, api.SignalTyping)
	}

	resp, err := h.RunTask(h.base, api.TaskRequest{Task: content, SkipVerification: &skip})
	if err != nil {
		h.reply(msg.Session, FormatError(err))
		return
	}
	h.reply(msg.Session, FormatResponse(resp, msg.Format))
}

func (h *TaskHandler) reply(session api.SessionContext, text string) {
	if h.responder == nil {
		slog.Warn("No responder set, dropping reply", "channel", session.ChannelID)
		return
	}
	if err := h.responder.SendReply(session, text); err != nil {
		slog.Error("Failed to send reply", "channel", session.ChannelID, "error", err)
	}
}

// FormatResponse renders a task response for a chat session.
func FormatResponse(resp *api.TaskResponse, format api.ReplyFormat) string {
	if format == api.ReplyJSON {
		b, err := json.Marshal(resp)
		if err != nil {
			return FormatError(err)
		}
		return string(b)
	}

	var sb strings.Builder
	sb.WriteString(resp.Result.Answer)
	if len(resp.Result.Sources) > 0 {
		sb.WriteString("\n\nSources: ")
		sb.WriteString(strings.Join(resp.Result.Sources, ", "))
	}
	if len(resp.Metadata.ToolsUsed) > 0 {
		fmt.Fprintf(&sb, "\nTools: %s", strings.Join(resp.Metadata.ToolsUsed, ", "))
	}
	return sb.String()
}

// FormatError renders a failure for a chat session.
func FormatError(err error) string {
	if errors.Is(err, api.ErrEmptyTask) {
		return usage
	}
	return fmt.Sprintf("❌ Error: %v", err)
}
