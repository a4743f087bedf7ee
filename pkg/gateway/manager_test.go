package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"opsagent/pkg/api"
	"opsagent/pkg/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu      sync.Mutex
	id      string
	started bool
	stopped bool
	sent    []string
	signals []string
	stages  []api.Stage
	ctx     api.ChannelContext
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Start(ctx api.ChannelContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started, c.ctx = true, ctx
	return nil
}

func (c *fakeChannel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *fakeChannel) Send(_ api.SessionContext, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, message)
	return nil
}

// signalChannel also supports signals and stage events.
type signalChannel struct{ fakeChannel }

func (c *signalChannel) SendSignal(_ api.SessionContext, signal string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, signal)
	return nil
}

func (c *signalChannel) OnStage(ev api.StageEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = append(c.stages, ev.Stage)
}

type fakeMonitor struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	messages []monitor.MonitorMessage
	stages   []api.Stage
}

func (m *fakeMonitor) Start() error { m.started = true; return nil }
func (m *fakeMonitor) Stop() error  { m.stopped = true; return nil }

func (m *fakeMonitor) OnMessage(msg monitor.MonitorMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *fakeMonitor) OnStage(ev api.StageEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, ev.Stage)
}

// echoHandler replies to every message with its content.
type echoHandler struct {
	responder api.MessageResponder
	tasks     []string
}

func (h *echoHandler) SetResponder(r api.MessageResponder) { h.responder = r }

func (h *echoHandler) OnMessage(msg *api.UnifiedMessage) {
	_ = h.responder.SendSignal(msg.Session, api.SignalTyping)
	_ = h.responder.SendReply(msg.Session, "echo: "+msg.Content)
}

func (h *echoHandler) RunTask(_ context.Context, req api.TaskRequest) (*api.TaskResponse, error) {
	h.tasks = append(h.tasks, req.Task)
	return &api.TaskResponse{}, nil
}

func TestBuilderWiresHandlerAndChannels(t *testing.T) {
	plain := &fakeChannel{id: "plain"}
	sig := &signalChannel{fakeChannel{id: "sig"}}
	mon := &fakeMonitor{}
	h := &echoHandler{}

	gw, err := NewGatewayBuilder().
		WithMonitor(mon).
		WithChannel(plain, sig).
		WithHandler(h).
		Build()
	require.NoError(t, err)

	assert.True(t, mon.started)
	assert.True(t, plain.started)
	assert.True(t, sig.started)
	assert.Same(t, gw, sig.ctx)

	sig.ctx.OnMessage("sig", &api.UnifiedMessage{
		Session: api.SessionContext{ChannelID: "sig", Username: "ops"},
		Content: "hello",
	})
	assert.Equal(t, []string{"echo: hello"}, sig.sent)
	assert.Equal(t, []string{api.SignalTyping}, sig.signals)

	require.Len(t, mon.messages, 2)
	assert.Equal(t, "TASK", mon.messages[0].MessageType)
	assert.Equal(t, "RESULT", mon.messages[1].MessageType)

	_, err = gw.RunTask(context.Background(), api.TaskRequest{Task: "t"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, h.tasks)

	gw.StopAll()
	assert.True(t, plain.stopped)
	assert.True(t, sig.stopped)
	assert.True(t, mon.stopped)
}

func TestSignalIgnoredByPlainChannel(t *testing.T) {
	gw := NewGatewayManager()
	gw.Register(&fakeChannel{id: "plain"})

	assert.NoError(t, gw.SendSignal(api.SessionContext{ChannelID: "plain"}, api.SignalTyping))
	assert.Error(t, gw.SendSignal(api.SessionContext{ChannelID: "missing"}, api.SignalTyping))
	assert.Error(t, gw.SendReply(api.SessionContext{ChannelID: "missing"}, "x"))
}

func TestOnStageFansOut(t *testing.T) {
	mon := &fakeMonitor{}
	plain := &fakeChannel{id: "plain"}
	sig := &signalChannel{fakeChannel{id: "sig"}}

	gw := NewGatewayManager()
	gw.SetMonitor(mon)
	gw.Register(plain)
	gw.Register(sig)

	gw.OnStage(api.StageEvent{TaskID: "1", Stage: api.StageFinalized})

	assert.Equal(t, []api.Stage{api.StageFinalized}, mon.stages)
	assert.Equal(t, []api.Stage{api.StageFinalized}, sig.stages)
}

func TestRunTaskWithoutRunner(t *testing.T) {
	_, err := NewGatewayManager().RunTask(context.Background(), api.TaskRequest{Task: "x"})
	assert.True(t, errors.Is(err, ErrNoRunner))
}

func TestOnMessageWithoutHandlerDrops(t *testing.T) {
	gw := NewGatewayManager()
	assert.NotPanics(t, func() {
		gw.OnMessage("web", &api.UnifiedMessage{Content: "x"})
	})
}
