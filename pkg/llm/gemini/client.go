package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"opsagent/pkg/llm"

	"google.golang.org/genai"
)

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client       *genai.Client
	model        string
	debugEnabled bool
}

// SetDebug toggles raw response dumps.
func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

// NewGeminiClient creates a Gemini client with a single model and API key.
// An empty baseURL uses the public Gemini API endpoint.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return llm.ProviderGemini
}

// Generate implements llm.LLMClient.
func (g *GeminiClient) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.JSONMode {
		cfg.ResponseMIMEType = llm.MIMETypeJSON
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	slog.DebugContext(ctx, "Gemini request", "model", g.model, "json", opts.JSONMode)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyError(err)
	}

	debugger := llm.NewResponseDebugger(ctx, g.Provider(), g.debugEnabled)
	defer debugger.Close()
	debugger.WriteJSON(resp)

	if u := resp.UsageMetadata; u != nil {
		usage := &llm.LLMUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
		if len(resp.Candidates) > 0 {
			usage.StopReason = normalizeFinishReason(resp.Candidates[0].FinishReason)
		}
		llm.LogUsage(ctx, g.Provider(), g.model, usage)
	}

	return resp.Text(), nil
}

func normalizeFinishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonLength
	case "":
		return ""
	default:
		return llm.StopReasonStop
	}
}

// classifyError maps SDK failures onto llm.Error. The SDK returns APIError by
// value; anything else is classified from its message.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewError(llm.ProviderGemini, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return llm.NewError(llm.ProviderGemini, apiErrPtr.Code, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return llm.NewError(llm.ProviderGemini, 0, err)
}
