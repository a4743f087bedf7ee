// Command llmprobe sends one JSON-mode prompt through the configured provider
// chain and saves the raw completion under debug/responses, to check how a
// model formats structured output before pointing the engine at it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"opsagent/pkg/config"
	"opsagent/pkg/llm"
	_ "opsagent/pkg/llm/autoload"
	"opsagent/pkg/monitor"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	appPath := flag.String("config", "config.json", "application config (.json or .yaml)")
	sysPath := flag.String("system", "system.json", "system config")
	prompt := flag.String("prompt", `Return {"answer": "pong", "sources": []} as JSON.`, "prompt to send")
	timeout := flag.Duration("timeout", time.Minute, "request timeout")
	flag.Parse()

	monitor.SetupSlog("debug")

	cfg, sys, err := config.Load(*appPath, *sysPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client, err := llm.NewFromConfig(cfg.LLM, sys)
	if err != nil {
		slog.Error("Failed to init LLM client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = monitor.WithTaskID(ctx, "probe-"+uuid.NewString()[:8])

	dbg := llm.NewResponseDebugger(ctx, client.Provider(), true)
	defer dbg.Close()
	dbg.WriteString(*prompt)

	start := time.Now()
	text, err := client.Generate(ctx, *prompt, llm.GenerateOptions{Temperature: 0, JSONMode: true})
	if err != nil {
		slog.Error("Generation failed", "provider", client.Provider(), "kind", llm.Classify(err), "error", err)
		os.Exit(1)
	}
	dbg.WriteString(text)

	var parsed any
	valid := json.Unmarshal([]byte(text), &parsed) == nil

	slog.Info("Probe done",
		"provider", client.Provider(),
		"prompt_tokens", llm.DefaultTokenCounter().Count(*prompt),
		"duration", time.Since(start).Round(time.Millisecond),
		"valid_json", valid,
	)
	fmt.Println(text)
}
