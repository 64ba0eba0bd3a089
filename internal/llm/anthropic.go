package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int64
	Timeout           time.Duration
	RequestsPerMinute int
}

// Anthropic generates text with the Anthropic Messages API. Calls are never retried.
type Anthropic struct {
	client    sdk.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// Option configures an Anthropic generator.
type Option func(*Anthropic)

// WithLogger sets a logger for token usage.
func WithLogger(l *zap.Logger) Option {
	return func(a *Anthropic) { a.logger = l }
}

// NewAnthropic creates a generator. An empty API key is an error.
func NewAnthropic(cfg AnthropicConfig, opts ...Option) (*Anthropic, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("anthropic: API key is not set")
	}
	if cfg.Model == "" {
		return nil, eris.New("anthropic: model is not set")
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	a := &Anthropic{
		client:    sdk.NewClient(clientOpts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   cfg.Timeout,
	}
	if cfg.RequestsPerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), 1)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Generate sends prompt as a single user message and returns the concatenated
// text blocks of the reply. The configured timeout bounds the whole call,
// including any wait for the rate limiter.
func (a *Anthropic) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "anthropic: rate limit wait")
		}
	}

	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(a.model),
		MaxTokens:   a.maxTokens,
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
		Temperature: sdk.Float(temperature),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", eris.Wrapf(err, "anthropic: request timed out after %s", a.timeout)
		}
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if a.logger != nil {
		a.logger.Debug("generation complete",
			zap.String("model", string(msg.Model)),
			zap.Int64("input_tokens", msg.Usage.InputTokens),
			zap.Int64("output_tokens", msg.Usage.OutputTokens))
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", eris.New("anthropic: empty response")
	}
	return text, nil
}

var _ Generator = (*Anthropic)(nil)
