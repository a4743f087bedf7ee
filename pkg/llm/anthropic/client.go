package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"opsagent/pkg/llm"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultMaxTokens = 4096
	jsonInstruction  = "Respond with a single JSON document and nothing else. Do not wrap it in markdown."
)

// Client wraps the Anthropic Messages API.
type Client struct {
	client       *sdk.Client
	model        string
	debugEnabled bool
}

// NewClient creates an Anthropic client. SDK retries are disabled.
func NewClient(apiKey, model, baseURL string) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := sdk.NewClient(opts...)
	return &Client{client: &client, model: model}, nil
}

func (c *Client) Provider() string { return llm.ProviderAnthropic }

func (c *Client) SetDebug(enabled bool) { c.debugEnabled = enabled }

// Generate implements llm.LLMClient. The Messages API has no JSON mode, so
// JSON output is requested through the system prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	maxTokens := int64(defaultMaxTokens)
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: sdk.Float(opts.Temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if opts.JSONMode {
		params.System = []sdk.TextBlockParam{{Text: jsonInstruction}}
	}

	slog.DebugContext(ctx, "Anthropic request", "model", c.model, "json", opts.JSONMode)

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}

	debugger := llm.NewResponseDebugger(ctx, c.Provider(), c.debugEnabled)
	defer debugger.Close()
	debugger.WriteString(resp.RawJSON())

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	stopReason := llm.StopReasonStop
	if string(resp.StopReason) == "max_tokens" {
		stopReason = llm.StopReasonLength
	}
	llm.LogUsage(ctx, c.Provider(), c.model, &llm.LLMUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		StopReason:       stopReason,
	})

	return sb.String(), nil
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return llm.NewError(llm.ProviderAnthropic, apiErr.StatusCode, err)
	}
	return llm.NewError(llm.ProviderAnthropic, 0, err)
}
