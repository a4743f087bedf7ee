package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opsagent/pkg/agent"
	"opsagent/pkg/cache"
	"opsagent/pkg/channels"
	_ "opsagent/pkg/channels/autoload" // 自動註冊 Channels
	"opsagent/pkg/config"
	"opsagent/pkg/gateway"
	"opsagent/pkg/handler"
	"opsagent/pkg/llm"
	_ "opsagent/pkg/llm/autoload" // 自動註冊 LLM Providers
	"opsagent/pkg/metrics"
	"opsagent/pkg/monitor"
	"opsagent/pkg/persistence"
	"opsagent/pkg/structured"
	"opsagent/pkg/tools"
	"opsagent/pkg/tools/github"
	"opsagent/pkg/tools/weather"
)

const (
	appConfigPath    = "config.json"
	systemConfigPath = "system.json"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 0. 讀取設定檔 ---
	cfg, sys, err := config.Load(configPath(), systemConfigPath)
	if err != nil {
		monitor.SetupSlog("info")
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	monitor.SetupSlog(sys.LogLevel)
	monitor.PrintBanner()

	// --- 1. LLM 設定 ---
	client, err := llm.NewFromConfig(cfg.LLM, sys)
	if err != nil {
		slog.Error("Failed to init LLM client", "error", err)
		os.Exit(1)
	}

	// --- 2. Cache / Metrics / Structured client ---
	recorder := metrics.NewPrometheusRecorder(nil)
	responseCache := cache.New(time.Duration(sys.CacheTTLSeconds) * time.Second)
	if sys.EnableCache && sys.CacheSweepIntervalMs > 0 {
		go responseCache.Run(ctx, time.Duration(sys.CacheSweepIntervalMs)*time.Millisecond)
	}
	structuredClient := structured.New(client, structured.OptionsFromSystem(sys),
		structured.WithCache(responseCache),
		structured.WithMetrics(recorder),
	)

	// --- 3. Tools ---
	registry := tools.NewToolRegistry(github.NewClient(cfg.Tools.GitHubBaseURL, cfg.Tools.GitHubToken).Tools()...)
	registry.Register(weather.New(cfg.Tools.GeocodingURL, cfg.Tools.ForecastURL))
	executor := tools.NewExecutor(registry, time.Duration(sys.ToolTimeoutMs)*time.Millisecond, recorder)

	// --- 4. Run history (optional) ---
	deps := &channels.Deps{System: sys, Metrics: recorder.Handler()}
	var recorderStore handler.RunRecorder
	var store *persistence.RunStore
	if cfg.RunStorePath != "" {
		store, err = persistence.Open(cfg.RunStorePath)
		if err != nil {
			slog.Error("Failed to open run store", "path", cfg.RunStorePath, "error", err)
			os.Exit(1)
		}
		deps.Runs = store
		recorderStore = store
	}

	// --- 5. Gateway 初始化（使用 Builder 模式）---
	builder := gateway.NewGatewayBuilder()
	engine := agent.NewEngine(structuredClient, executor,
		agent.WithObservers(builder.Manager()),
		agent.WithMetrics(recorder),
	)

	gw, err := builder.
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannel(channels.LoadFromConfig(cfg.Channels, deps)...).
		WithHandler(handler.New(engine, recorderStore, 0).WithBaseContext(ctx)).
		Build()
	if err != nil {
		slog.Error("Failed to build gateway", "error", err)
		os.Exit(1)
	}

	// 監聽 system.json 變更，熱更新 log level
	go config.WatchSystemConfig(ctx, systemConfigPath, func(next *config.SystemConfig) {
		monitor.SetLevel(next.LogLevel)
	})

	// 等待信號
	<-ctx.Done()
	slog.Info("Received shutdown signal. Stopping services...")

	// 執行清理
	gw.StopAll()
	if store != nil {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close run store", "error", err)
		}
	}
	slog.Info("Bye!")
}

// configPath prefers config.json and falls back to config.yaml.
func configPath() string {
	if _, err := os.Stat(appConfigPath); err == nil {
		return appConfigPath
	}
	for _, alt := range []string{"config.yaml", "config.yml"} {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}
	return appConfigPath
}
