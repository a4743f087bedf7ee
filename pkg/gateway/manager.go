package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"opsagent/pkg/api"
	"opsagent/pkg/monitor"
)

// ErrNoRunner is returned by RunTask before a handler has been wired.
var ErrNoRunner = errors.New("gateway: no task runner configured")

// GatewayManager 負責管理所有的 Channels 並統一路由訊息
type GatewayManager struct {
	channels   map[string]api.Channel
	msgHandler api.MessageHandler
	runner     api.TaskRunner
	monitor    monitor.Monitor // 監控器
	mu         sync.RWMutex
}

var (
	_ api.ChannelContext = (*GatewayManager)(nil)
	_ api.StageObserver  = (*GatewayManager)(nil)
)

// NewGatewayManager 建立一個新的 GatewayManager
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]api.Channel),
	}
}

// SetMessageHandler 設定處理訊息的核心邏輯
func (g *GatewayManager) SetMessageHandler(handler api.MessageHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.msgHandler = handler
}

// SetTaskRunner 設定同步執行任務的元件 (HTTP /run 使用)
func (g *GatewayManager) SetTaskRunner(runner api.TaskRunner) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runner = runner
}

// SetMonitor 設定監控器
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.monitor = m
}

// Register 註冊一個 Channel
func (g *GatewayManager) Register(c api.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel 取得特定的 Channel (通常用於主動發送訊息)
func (g *GatewayManager) GetChannel(id string) (api.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

func (g *GatewayManager) snapshot() ([]api.Channel, monitor.Monitor) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	list := make([]api.Channel, 0, len(g.channels))
	for _, c := range g.channels {
		list = append(list, c)
	}
	return list, g.monitor
}

// StartAll 啟動所有已註冊的 Channels
func (g *GatewayManager) StartAll() error {
	channels, _ := g.snapshot()
	for _, c := range channels {
		slog.Info("Starting channel", "id", c.ID())
		// 啟動 Channel，並傳入 self 作為 Context
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", c.ID(), err)
		}
	}
	return nil
}

// StopAll 停止所有 Channels
func (g *GatewayManager) StopAll() {
	channels, mon := g.snapshot()
	for _, c := range channels {
		slog.Info("Stopping channel", "id", c.ID())
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "id", c.ID(), "error", err)
		}
	}
	if mon != nil {
		_ = mon.Stop()
	}
}

// SendReply 統一的回覆介面，透過 Channel 介面送回訊息
func (g *GatewayManager) SendReply(session api.SessionContext, content string) error {
	slog.Debug("Gateway reply", "channel", session.ChannelID, "user", session.Username, "bytes", len(content))

	_, mon := g.snapshot()
	if mon != nil {
		mon.OnMessage(monitor.MonitorMessage{
			Timestamp:   time.Now(),
			MessageType: "RESULT",
			ChannelID:   session.ChannelID,
			Username:    session.Username,
			Content:     content,
		})
	}

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	return c.Send(session, content)
}

// SendSignal 發送一個控制訊號 (如 typing) 到 Channel
func (g *GatewayManager) SendSignal(session api.SessionContext, signal string) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	// 檢查 Channel 是否支援訊號介面
	if sc, ok := c.(api.SignalingChannel); ok {
		return sc.SendSignal(session, signal)
	}

	// 不支援的通道安靜地忽略
	return nil
}

// OnMessage 實作 ChannelContext 介面，接收來自 Channel 的訊息
func (g *GatewayManager) OnMessage(channelID string, msg *api.UnifiedMessage) {
	slog.Info("Gateway received task", "channel", channelID, "user", msg.Session.Username, "task", msg.Content)

	g.mu.RLock()
	mon, handler := g.monitor, g.msgHandler
	g.mu.RUnlock()

	if mon != nil {
		mon.OnMessage(monitor.MonitorMessage{
			Timestamp:   time.Now(),
			MessageType: "TASK",
			ChannelID:   channelID,
			Username:    msg.Session.Username,
			Content:     msg.Content,
		})
	}

	if handler == nil {
		slog.Warn("No message handler set, dropping message", "channel", channelID)
		return
	}
	handler(msg)
}

// RunTask 實作 api.TaskRunner，轉交給已設定的 runner
func (g *GatewayManager) RunTask(ctx context.Context, req api.TaskRequest) (*api.TaskResponse, error) {
	g.mu.RLock()
	runner := g.runner
	g.mu.RUnlock()

	if runner == nil {
		return nil, ErrNoRunner
	}
	return runner.RunTask(ctx, req)
}

// OnStage 將任務階段事件轉發給監控器與支援的 Channels
func (g *GatewayManager) OnStage(ev api.StageEvent) {
	channels, mon := g.snapshot()
	if mon != nil {
		mon.OnStage(ev)
	}
	for _, c := range channels {
		if obs, ok := c.(api.StageObserver); ok {
			obs.OnStage(ev)
		}
	}
}
