package model

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Query is one structured function-call request.
type Query struct {
	Function        string // name of the function the model must call
	Description     string
	System          string
	Text            string
	Schema          []FieldSpec
	MaxOutputTokens int
}

// Provider performs a single structured call and returns the raw function
// arguments. Transport failures are *TransportError; replies without a
// usable function call are *MalformedResponseError.
type Provider interface {
	Name() string
	RequiresKey() bool
	Call(ctx context.Context, q Query) (map[string]any, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider        string // anthropic, openai, gemini or ollama
	Model           string
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxOutputTokens int
}

var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5-20250929",
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-2.5-flash",
	"ollama":    "llama3.1",
}

// Client validates structured replies from a Provider. It holds no state
// across calls apart from its configuration and latency stats.
type Client struct {
	provider  Provider
	hasKey    bool
	model     string
	maxOutput int
	stats     *LLMStats
	log       *slog.Logger
	closeFn   func()
}

// New builds a Client for cfg.Provider. A missing credential is logged and
// surfaces later as a TransportError on each query.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var (
		p       Provider
		closeFn = httpClient.CloseIdleConnections
		err     error
	)
	switch cfg.Provider {
	case "anthropic":
		p = NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL, httpClient)
	case "openai":
		p = NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, httpClient)
	case "gemini":
		p, err = NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, httpClient)
	case "ollama":
		p, err = NewOllama(cfg.Model, cfg.BaseURL, httpClient)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}

	c := NewWithProvider(p, cfg, log)
	c.closeFn = closeFn
	if p.RequiresKey() && !c.hasKey {
		c.log.Warn("model credential not configured, queries will fail")
	}
	return c, nil
}

// NewWithProvider wraps an already constructed provider.
func NewWithProvider(p Provider, cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	maxOutput := cfg.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = 4096
	}
	return &Client{
		provider:  p,
		hasKey:    cfg.APIKey != "",
		model:     cfg.Model,
		maxOutput: maxOutput,
		stats:     NewLLMStats(time.Hour),
		log:       log.With("provider", p.Name()),
	}
}

// Query sends q and validates the reply against q.Schema. Nothing partial is
// returned on failure.
func (c *Client) Query(ctx context.Context, q Query) (Result, error) {
	if c.provider.RequiresKey() && !c.hasKey {
		return nil, &TransportError{Provider: c.provider.Name(), Message: "missing credential"}
	}
	if q.MaxOutputTokens <= 0 || q.MaxOutputTokens > c.maxOutput {
		q.MaxOutputTokens = c.maxOutput
	}

	start := time.Now()
	raw, err := c.provider.Call(ctx, q)
	var res Result
	if err == nil {
		res, err = Validate(c.provider.Name(), q.Schema, raw)
	}
	elapsed := time.Since(start).Milliseconds()
	c.stats.RecordOutcome(elapsed, outcomeOf(err))
	if err != nil {
		c.log.Warn("model call failed", "function", q.Function, "duration_ms", elapsed, "error", err)
		return nil, err
	}
	c.log.Debug("model call complete", "function", q.Function, "duration_ms", elapsed)
	return res, nil
}

// Stats returns the latency recorder.
func (c *Client) Stats() *LLMStats { return c.stats }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// ProviderName returns the provider in use.
func (c *Client) ProviderName() string { return c.provider.Name() }

// Close releases resources.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}
