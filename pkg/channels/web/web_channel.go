package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"opsagent/pkg/api"
	"opsagent/pkg/channels"
	"opsagent/pkg/structured"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxBodyBytes   = 1 << 20
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
	defaultRunList = 20
	maxRunList     = 200
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

type WebConfig struct {
	Port int `json:"port"` // Default: 8000
}

// wsEvent is the envelope for every frame pushed to a WebSocket client.
type wsEvent struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Value   string          `json:"value,omitempty"`
	Event   *api.StageEvent `json:"event,omitempty"`
}

// wsClient owns one connection. Only writePump writes to conn.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// WebChannel serves the HTTP task API and a WebSocket stream of stage events.
type WebChannel struct {
	config  WebConfig
	server  *http.Server
	runs    channels.RunLister
	metrics http.Handler
	clients map[string]*wsClient // client ID -> connection
	mu      sync.RWMutex
}

var (
	_ api.SignalingChannel = (*WebChannel)(nil)
	_ api.StageObserver    = (*WebChannel)(nil)
)

func NewWebChannel(cfg WebConfig, runs channels.RunLister, metrics http.Handler) *WebChannel {
	return &WebChannel{
		config:  cfg,
		runs:    runs,
		metrics: metrics,
		clients: make(map[string]*wsClient),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	addr := fmt.Sprintf(":%d", c.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web listen on %s: %w", addr, err)
	}

	c.server = &http.Server{
		Handler:           c.routes(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Web API listening", "port", c.config.Port)

	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) routes(ctx api.ChannelContext) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", func(w http.ResponseWriter, r *http.Request) {
		c.handleRun(w, r, ctx)
	})
	mux.HandleFunc("GET /runs", c.handleRuns)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if c.metrics != nil {
		mux.Handle("GET /metrics", c.metrics)
	}
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})
	return mux
}

func (c *WebChannel) Stop() error {
	c.mu.Lock()
	for id, cl := range c.clients {
		delete(c.clients, id)
		close(cl.send)
	}
	c.mu.Unlock()

	if c.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.server.Shutdown(shutdownCtx); err != nil {
		return c.server.Close()
	}
	return nil
}

// Send delivers a reply to the WebSocket client named by session.UserID.
func (c *WebChannel) Send(session api.SessionContext, message string) error {
	return c.push(session.UserID, wsEvent{Type: "reply", Content: message})
}

// SendSignal implements the api.SignalingChannel interface
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	return c.push(session.UserID, wsEvent{Type: "signal", Value: signal})
}

// OnStage broadcasts a stage event to every connected client. Slow clients
// miss events rather than stall the engine.
func (c *WebChannel) OnStage(ev api.StageEvent) {
	data, err := json.Marshal(wsEvent{Type: "stage", Event: &ev})
	if err != nil {
		slog.Error("Failed to marshal stage event", "error", err)
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cl := range c.clients {
		select {
		case cl.send <- data:
		default:
			slog.Debug("Dropping stage event for slow client", "client", cl.id, "stage", ev.Stage)
		}
	}
}

func (c *WebChannel) push(clientID string, ev wsEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", ev.Type, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.clients[clientID]
	if !ok {
		return fmt.Errorf("web user %s not connected", clientID)
	}
	select {
	case cl.send <- data:
		return nil
	default:
		return fmt.Errorf("web user %s send buffer full", clientID)
	}
}

func (c *WebChannel) handleRun(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	var req api.TaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := ctx.RunTask(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *WebChannel) handleRuns(w http.ResponseWriter, r *http.Request) {
	if c.runs == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}

	limit := defaultRunList
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxRunList)
	}

	runs, err := c.runs.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}

	cl := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	// Register connection
	c.mu.Lock()
	c.clients[cl.id] = cl
	c.mu.Unlock()

	go c.writePump(cl)
	c.readPump(cl, ctx)
}

// readPump turns incoming frames into tasks until the connection drops.
func (c *WebChannel) readPump(cl *wsClient, ctx api.ChannelContext) {
	defer func() {
		c.removeClient(cl.id)
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(maxBodyBytes)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	session := api.SessionContext{
		ChannelID: "web",
		UserID:    cl.id,
		ChatID:    cl.id,
		Username:  "WebUser",
	}

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WS read failed", "client", cl.id, "error", err)
			}
			return
		}
		_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))

		msg := parseIncoming(data)
		msg.Session = session
		// Tasks run off the read loop so pongs keep flowing.
		go ctx.OnMessage(c.ID(), msg)
	}
}

// writePump is the only writer for cl.conn.
func (c *WebChannel) writePump(cl *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case data, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebChannel) removeClient(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[id]; ok {
		delete(c.clients, id)
		close(cl.send)
	}
}

// parseIncoming accepts either a JSON task request or plain task text.
func parseIncoming(data []byte) *api.UnifiedMessage {
	msg := &api.UnifiedMessage{
		SkipVerification: true,
		Format:           api.ReplyJSON,
	}

	trimmed := strings.TrimSpace(string(data))
	var req api.TaskRequest
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &req) == nil {
		msg.Content = req.Task
		msg.SkipVerification = req.Skip()
		return msg
	}

	// Fallback: treat as plain text
	msg.Content = trimmed
	return msg
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrEmptyTask):
		return http.StatusBadRequest
	case errors.Is(err, structured.ErrRateLimitExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, api.ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
