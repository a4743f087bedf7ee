package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"opsagent/pkg/api"
	"opsagent/pkg/channels"
	"opsagent/pkg/persistence"
	"opsagent/pkg/schema"
	"opsagent/pkg/structured"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway records messages and runs tasks with a fixed result.
type fakeGateway struct {
	mu       sync.Mutex
	err      error
	requests []api.TaskRequest
	messages chan *api.UnifiedMessage
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{messages: make(chan *api.UnifiedMessage, 4)}
}

func (g *fakeGateway) SendReply(api.SessionContext, string) error  { return nil }
func (g *fakeGateway) SendSignal(api.SessionContext, string) error { return nil }

func (g *fakeGateway) OnMessage(_ string, msg *api.UnifiedMessage) {
	g.messages <- msg
}

func (g *fakeGateway) RunTask(_ context.Context, req api.TaskRequest) (*api.TaskResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	if strings.TrimSpace(req.Task) == "" {
		return nil, api.ErrEmptyTask
	}
	return &api.TaskResponse{
		Result: schema.FinalResponse{Answer: "42", Sources: []string{"weather"}},
		Metadata: api.TaskMetadata{
			Steps:               []schema.PlanStep{{Tool: "weather", Input: map[string]any{"city": "Oslo"}}},
			ToolsUsed:           []string{"weather"},
			VerificationSkipped: req.Skip(),
		},
	}, nil
}

type fakeRuns struct {
	limit int
	runs  []persistence.Run
}

func (f *fakeRuns) Recent(_ context.Context, limit int) ([]persistence.Run, error) {
	f.limit = limit
	return f.runs, nil
}

func newTestServer(t *testing.T, c *WebChannel, gw *fakeGateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(c.routes(gw))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestRunReturnsResultAndMetadata(t *testing.T) {
	gw := newFakeGateway()
	srv := newTestServer(t, NewWebChannel(WebConfig{}, nil, nil), gw)

	resp, body := post(t, srv.URL+"/run", `{"task": "weather in Oslo"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	result := body["result"].(map[string]any)
	assert.Equal(t, "42", result["answer"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, true, meta["verification_skipped"])
	assert.Equal(t, []any{"weather"}, meta["tools_used"])
	assert.Len(t, meta["steps"], 1)

	require.Len(t, gw.requests, 1)
	assert.True(t, gw.requests[0].Skip())
}

func TestRunHonoursSkipVerificationFalse(t *testing.T) {
	gw := newFakeGateway()
	srv := newTestServer(t, NewWebChannel(WebConfig{}, nil, nil), gw)

	_, body := post(t, srv.URL+"/run", `{"task": "x", "skip_verification": false}`)
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, false, meta["verification_skipped"])
}

func TestRunErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"empty task", nil, `{"task": "  "}`, http.StatusBadRequest},
		{"bad json", nil, `{"task": `, http.StatusBadRequest},
		{"rate limited", fmt.Errorf("planning: %w after 3 attempts", structured.ErrRateLimitExhausted), `{"task": "x"}`, http.StatusServiceUnavailable},
		{"other", errors.New("planning: boom"), `{"task": "x"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.err = tt.err
			srv := newTestServer(t, NewWebChannel(WebConfig{}, nil, nil), gw)

			resp, body := post(t, srv.URL+"/run", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["detail"])
		})
	}
}

func TestRunRejectsGet(t *testing.T) {
	srv := newTestServer(t, NewWebChannel(WebConfig{}, nil, nil), newFakeGateway())

	resp, err := http.Get(srv.URL + "/run")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRunsEndpoint(t *testing.T) {
	runs := &fakeRuns{runs: []persistence.Run{{ID: "r1", Task: "t", Success: true}}}
	srv := newTestServer(t, NewWebChannel(WebConfig{}, runs, nil), newFakeGateway())

	resp, err := http.Get(srv.URL + "/runs?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, runs.limit)

	var body struct {
		Runs []persistence.Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "r1", body.Runs[0].ID)

	bad, err := http.Get(srv.URL + "/runs?limit=abc")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestRunsWithoutStore(t *testing.T) {
	srv := newTestServer(t, NewWebChannel(WebConfig{}, nil, nil), newFakeGateway())

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "opsagent_tasks_total 1\n")
	})
	srv := newTestServer(t, NewWebChannel(WebConfig{}, nil, metrics), newFakeGateway())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev wsEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestWebSocketTaskAndReply(t *testing.T) {
	gw := newFakeGateway()
	c := NewWebChannel(WebConfig{}, nil, nil)
	srv := newTestServer(t, c, gw)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"task": "check", "skip_verification": false}`)))

	var msg *api.UnifiedMessage
	select {
	case msg = <-gw.messages:
	case <-time.After(2 * time.Second):
		t.Fatal("message not dispatched")
	}
	assert.Equal(t, "check", msg.Content)
	assert.False(t, msg.SkipVerification)
	assert.Equal(t, api.ReplyJSON, msg.Format)
	assert.Equal(t, "web", msg.Session.ChannelID)

	require.NoError(t, c.SendSignal(msg.Session, api.SignalTyping))
	require.NoError(t, c.Send(msg.Session, `{"result": {}}`))

	ev := readEvent(t, conn)
	assert.Equal(t, "signal", ev.Type)
	assert.Equal(t, api.SignalTyping, ev.Value)

	ev = readEvent(t, conn)
	assert.Equal(t, "reply", ev.Type)
	assert.Equal(t, `{"result": {}}`, ev.Content)
}

func TestWebSocketPlainTextTask(t *testing.T) {
	gw := newFakeGateway()
	srv := newTestServer(t, NewWebChannel(WebConfig{}, nil, nil), gw)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("  weather in Oslo ")))

	select {
	case msg := <-gw.messages:
		assert.Equal(t, "weather in Oslo", msg.Content)
		assert.True(t, msg.SkipVerification)
	case <-time.After(2 * time.Second):
		t.Fatal("message not dispatched")
	}
}

func TestWebSocketStageBroadcast(t *testing.T) {
	c := NewWebChannel(WebConfig{}, nil, nil)
	srv := newTestServer(t, c, newFakeGateway())
	conn := dialWS(t, srv)

	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return len(c.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	c.OnStage(api.StageEvent{TaskID: "t-1", Stage: api.StagePlanned, Success: true})

	ev := readEvent(t, conn)
	assert.Equal(t, "stage", ev.Type)
	require.NotNil(t, ev.Event)
	assert.Equal(t, "t-1", ev.Event.TaskID)
	assert.Equal(t, api.StagePlanned, ev.Event.Stage)
}

func TestSendToUnknownClient(t *testing.T) {
	c := NewWebChannel(WebConfig{}, nil, nil)
	err := c.Send(api.SessionContext{UserID: "nobody"}, "hi")
	assert.Error(t, err)
}

func TestFactoryDefaults(t *testing.T) {
	ch, err := (&WebFactory{}).Create(nil, &channels.Deps{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, ch.(*WebChannel).config.Port)

	ch, err = (&WebFactory{}).Create([]byte(`{"port": 9100}`), nil)
	require.NoError(t, err)
	assert.Equal(t, 9100, ch.(*WebChannel).config.Port)

	_, err = (&WebFactory{}).Create([]byte(`{"port": `), nil)
	assert.Error(t, err)
}
