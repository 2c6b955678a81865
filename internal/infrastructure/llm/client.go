// Package llm turns questions into T-SQL with a hosted or local language model.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/salesplan/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Provider names
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config holds model endpoint settings
type Config struct {
	Provider     string
	BaseURL      string
	Model        string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Temperature  float64
	MaxTokens    int
	TopLimit     int
}

// Provider completes a prompt with a model
type Provider interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Client generates SQL for questions using a Provider
type Client struct {
	provider Provider
	topLimit int
	logger   *zap.Logger
}

// New builds a client for cfg.Provider. ProviderNone yields a nil client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Provider == ProviderNone || cfg.Provider == "" {
		return nil, nil
	}
	httpClient := newHTTPClient(cfg, logger)

	var p Provider
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm: api key is required for provider %q", cfg.Provider)
		}
		p = NewOpenAIProvider(httpClient, cfg)
	case ProviderOllama:
		p = NewOllamaProvider(httpClient, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	return NewClient(p, cfg.TopLimit, logger), nil
}

// NewClient wraps an existing provider
func NewClient(p Provider, topLimit int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topLimit <= 0 {
		topLimit = 100
	}
	return &Client{provider: p, topLimit: topLimit, logger: logger.Named("llm")}
}

// Provider returns the provider name
func (c *Client) Provider() string {
	return c.provider.Name()
}

// GenerateSQL asks the model for a statement answering question over the
// given schema and returns the extracted SQL.
func (c *Client) GenerateSQL(ctx context.Context, question, schemaText string, synonyms map[string][]string) (string, error) {
	prompt := BuildPrompt(schemaText, question, synonyms, c.topLimit)

	start := time.Now()
	text, err := c.provider.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("SQL generation failed",
			zap.String("provider", c.provider.Name()),
			zap.Error(err),
		)
		return "", err
	}

	sql := ExtractSQL(text)
	c.logger.Debug("SQL generated",
		zap.String("provider", c.provider.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_bytes", len(text)),
	)
	if sql == "" {
		return "", shared.ErrUpstreamUnavailable.WithDetail("the model response did not contain a SELECT statement")
	}
	return sql, nil
}

func newHTTPClient(cfg Config, logger *zap.Logger) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.Logger = leveledLogger{logger.Named("llm.http").Sugar()}

	c := rc.StandardClient()
	c.Timeout = cfg.Timeout
	return c
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
