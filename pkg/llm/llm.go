package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json 用於 package llm 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GenerateOptions controls a single completion request.
type GenerateOptions struct {
	// Temperature is the sampling temperature; structured calls use 0.
	Temperature float64
	// JSONMode asks the provider to emit a single JSON document.
	JSONMode bool
	// MaxTokens caps the completion length. Zero keeps the provider default.
	MaxTokens int
}

// LLMUsage 定義通用的用量統計結構
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage 印出統一格式的用量統計
func LogUsage(ctx context.Context, provider, model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.DebugContext(ctx, "LLM usage",
		"provider", provider,
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"stop_reason", usage.StopReason,
	)
}

// LLMClient 通用 LLM 客戶端介面
type LLMClient interface {
	// Generate sends a single prompt and returns the raw completion text.
	// Failures should be returned as *Error so callers can classify them.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Provider returns a short provider name used in logs and metrics.
	Provider() string
}

// FallbackClient 支援多個 Client 分級嘗試
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "index", i+1, "provider", client.Provider())
		}

		// 使用配置的重試次數，若為 0 則至少執行 1 次
		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.InfoContext(ctx, "Retrying provider", "index", i+1, "attempt", retry, "max", maxRetries)
				// 稍微等待一下再重試
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			text, err := client.Generate(ctx, prompt, opts)
			if err == nil {
				return text, nil
			}

			lastErr = err

			// Only transient server/network failures are retried on the same provider.
			if IsTransient(err) && retry < maxRetries {
				slog.WarnContext(ctx, "Provider failed with transient error", "index", i+1, "error", err)
				continue
			}

			// 非暫時性錯誤，或者已達最大重試次數
			slog.WarnContext(ctx, "Provider failed", "index", i+1, "provider", client.Provider(), "error", err)
			break
		}
	}
	return "", fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// Provider implements LLMClient.
func (f *FallbackClient) Provider() string {
	return "fallback"
}
