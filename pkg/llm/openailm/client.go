package openailm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"opsagent/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// Client is a wrapper around the official OpenAI Go SDK using Chat
// Completions. Any OpenAI-compatible endpoint works through BaseURL.
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
}

// NewClient creates a new OpenAI client. SDK-level retries are disabled; the
// structured client owns the retry policy.
func NewClient(provider string, apiKey string, model string, baseURL string) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", provider)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

// Generate implements llm.LLMClient.
func (c *Client) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}

	slog.DebugContext(ctx, "OpenAI request", "provider", c.provider, "model", c.model, "json", opts.JSONMode)

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.classifyError(err)
	}

	debugger := llm.NewResponseDebugger(ctx, c.provider, c.debugEnabled)
	defer debugger.Close()
	debugger.WriteString(resp.RawJSON())

	if len(resp.Choices) == 0 {
		return "", llm.NewError(c.provider, 0, fmt.Errorf("response contained no choices"))
	}

	choice := resp.Choices[0]
	llm.LogUsage(ctx, c.provider, c.model, &llm.LLMUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		StopReason:       choice.FinishReason,
	})

	return choice.Message.Content, nil
}

func (c *Client) classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.NewError(c.provider, apiErr.StatusCode, err)
	}
	return llm.NewError(c.provider, 0, err)
}
