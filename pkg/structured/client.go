// Package structured asks a model for JSON and turns the answer into a typed
// value, with caching, retries and tolerant recovery of loosely shaped output.
package structured

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"opsagent/pkg/cache"
	"opsagent/pkg/config"
	"opsagent/pkg/llm"
	"opsagent/pkg/metrics"
	"opsagent/pkg/schema"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrValidation marks model output that does not fit the target shape,
	// even after recovery.
	ErrValidation = schema.ErrInvalid
	// ErrRateLimitExhausted is returned once every attempt was throttled.
	ErrRateLimitExhausted = errors.New("rate limit exceeded")
	// ErrQuota is returned without retrying when the provider reports a
	// quota or billing problem.
	ErrQuota = errors.New("quota exceeded")
	// ErrGenerationFailed is returned when no attempt could be made.
	ErrGenerationFailed = errors.New("failed to generate a valid response")
)

const jsonInstruction = "Return ONLY valid JSON matching the schema. No extra text."

// maxBackoff caps the rate limit delay however many retries are configured.
const maxBackoff = time.Minute

// Options holds the retry and caching knobs.
type Options struct {
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	EnableCache bool
	Debug       bool
}

// OptionsFromSystem maps the system config onto Options.
func OptionsFromSystem(sys *config.SystemConfig) Options {
	if sys == nil {
		sys = config.DefaultSystemConfig()
	}
	return Options{
		MaxRetries:  sys.MaxRetries,
		RetryDelay:  time.Duration(sys.RetryDelayMs) * time.Millisecond,
		Timeout:     time.Duration(sys.LLMTimeoutMs) * time.Millisecond,
		EnableCache: sys.EnableCache,
		Debug:       sys.DebugResponses,
	}
}

// Client wraps an LLM client. It is safe for concurrent use as long as the
// underlying LLM client is.
type Client struct {
	llm     llm.LLMClient
	cache   *cache.ResponseCache
	opts    Options
	metrics metrics.Recorder
	tokens  *llm.TokenCounter
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithCache shares a response cache. Without one, caching is off regardless
// of Options.EnableCache.
func WithCache(c *cache.ResponseCache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(cl *Client) { cl.metrics = metrics.OrNop(r) }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(cl *Client) { cl.sleep = fn }
}

// New creates a Client.
func New(client llm.LLMClient, opts Options, extra ...Option) *Client {
	c := &Client{
		llm:     client,
		opts:    opts,
		metrics: metrics.Nop(),
		tokens:  llm.DefaultTokenCounter(),
		sleep:   sleepContext,
	}
	for _, opt := range extra {
		opt(c)
	}
	return c
}

func (c *Client) cacheEnabled() bool {
	return c.opts.EnableCache && c.cache != nil
}

// ChatJSON sends system and user to the model and decodes the reply into T.
//
// T may implement schema.Bound (alias table applied before decoding),
// schema.Validator (checks after decoding) and schema.Recoverable (salvage
// of a payload that failed strict decoding).
func ChatJSON[T any](ctx context.Context, c *Client, system, user string) (T, error) {
	var zero T
	shape := shapeName[T]()

	if c.cacheEnabled() {
		if cached, ok := c.cache.Get(system, user); ok {
			v, _, err := decode[T](shape, cached)
			c.metrics.ObserveCache(shape, err == nil)
			if err == nil {
				slog.DebugContext(ctx, "Structured response served from cache", "shape", shape)
				return v, nil
			}
			slog.WarnContext(ctx, "Cached response failed validation, calling model", "shape", shape, "error", err)
		} else {
			c.metrics.ObserveCache(shape, false)
		}
	}

	prompt := system + "\n\n" + user + "\n\n" + jsonInstruction
	promptTokens := c.tokens.Count(prompt)
	maxRetries := c.opts.MaxRetries

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		start := time.Now()
		v, plain, err := generate[T](ctx, c, shape, prompt)
		if err == nil {
			c.metrics.ObserveLLMAttempt(shape, "success", promptTokens, time.Since(start))
			if c.cacheEnabled() {
				c.cache.Set(system, user, plain)
			}
			return v, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		validation := errors.Is(err, ErrValidation)
		switch {
		case !validation && llm.IsRateLimited(err):
			c.metrics.ObserveLLMAttempt(shape, "rate_limited", promptTokens, time.Since(start))
			if attempt < maxRetries-1 {
				delay := c.backoff(attempt)
				c.metrics.IncRateLimitBackoff(shape)
				slog.WarnContext(ctx, "Rate limited, backing off",
					"shape", shape, "attempt", attempt+1, "max", maxRetries, "delay", delay)
				if err := c.sleep(ctx, delay); err != nil {
					return zero, err
				}
				continue
			}
			slog.ErrorContext(ctx, "Rate limit retries exhausted", "shape", shape, "error", err)
			return zero, fmt.Errorf("%w after %d attempts, please wait or upgrade your API quota", ErrRateLimitExhausted, maxRetries)

		case !validation && llm.IsQuota(err):
			c.metrics.ObserveLLMAttempt(shape, "quota", promptTokens, time.Since(start))
			return zero, fmt.Errorf("%w: %v", ErrQuota, err)

		default:
			c.metrics.ObserveLLMAttempt(shape, "error", promptTokens, time.Since(start))
			if attempt < maxRetries-1 {
				slog.WarnContext(ctx, "Structured call failed, retrying",
					"shape", shape, "attempt", attempt+1, "max", maxRetries, "error", err)
				continue
			}
			return zero, err
		}
	}

	return zero, ErrGenerationFailed
}

// backoff doubles RetryDelay once per attempt, up to maxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryDelay
	if d <= 0 {
		return 0
	}
	for i := 0; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// generate performs one model call and decodes the reply. The second return
// value is the canonical plain form stored in the cache.
func generate[T any](ctx context.Context, c *Client, shape, prompt string) (T, any, error) {
	var zero T

	callCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	raw, err := c.llm.Generate(callCtx, prompt, llm.GenerateOptions{Temperature: 0, JSONMode: true})
	if err != nil {
		return zero, nil, err
	}

	if c.opts.Debug {
		debugger := llm.NewResponseDebugger(ctx, c.llm.Provider(), true)
		debugger.WriteString(raw)
		debugger.Close()
	}

	payload, err := parsePayload(raw)
	if err != nil {
		return zero, nil, &schema.ValidationError{Shape: shape, Problems: []string{"invalid JSON: " + err.Error()}}
	}

	v, plain, err := decode[T](shape, payload)
	if err == nil {
		return v, plain, nil
	}

	recovered, ok := recoverPayload[T](payload)
	if !ok {
		return zero, nil, err
	}
	slog.DebugContext(ctx, "Strict decode failed, using recovered payload", "shape", shape, "error", err)
	return decode[T](shape, recovered)
}
