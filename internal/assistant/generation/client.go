// Package generation talks to the text-generation service that drafts
// proposal prose.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grant-assistant/internal/assistant/templates"
	"grant-assistant/internal/common/config"
	httpclient "grant-assistant/internal/common/http"
	"grant-assistant/internal/common/logger"
)

var (
	ErrGenerationTimeout = errors.New("GENERATION_TIMEOUT")
	ErrEmptyCompletion   = errors.New("EMPTY_COMPLETION")
)

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float64
}

// ConfigFrom maps the generation section of the application config.
func ConfigFrom(c config.GenerationConfig) Config {
	return Config{
		BaseURL:     strings.TrimRight(c.BaseURL, "/"),
		Timeout:     config.GetDuration(c.Timeout),
		MaxRetries:  c.MaxRetries,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}

// Client is a templates.Completer backed by an HTTP endpoint that accepts
// {"messages", "max_tokens", "temperature"} and answers {"text"}.
type Client struct {
	config *Config
	client *httpclient.Client
	logger logger.Logger
}

var _ templates.Completer = (*Client)(nil)

func NewClient(cfg Config, log logger.Logger) *Client {
	c := &Client{
		config: &cfg,
		logger: logger.Component(log, "generation"),
	}
	c.client = httpclient.NewClient(cfg.Timeout,
		httpclient.WithRetries(cfg.MaxRetries, 100*time.Millisecond),
		httpclient.WithRetryHook(func(attempt int, err error) {
			c.logger.Warn("completion attempt failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
		}),
	)
	return c
}

type completionRequest struct {
	Messages    []templates.Message `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Complete posts messages to <BaseURL>/api/ai/generate. Transport errors and
// non-2xx answers are retried with exponential backoff.
func (c *Client) Complete(ctx context.Context, messages []templates.Message) (string, error) {
	var out completionResponse
	err := c.client.PostJSON(ctx, c.config.BaseURL+"/api/ai/generate", completionRequest{
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}, &out)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", ErrGenerationTimeout
		}
		return "", fmt.Errorf("completion: %w", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", ErrEmptyCompletion
	}

	c.logger.Info("completion received", map[string]interface{}{
		"words": len(strings.Fields(out.Text)),
	})
	return out.Text, nil
}
