// Package llm provides the completion client used by the best-effort
// summarization path. Completion failures are never fatal; callers fall
// back to truncation.
package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"pce/internal/config"
	"pce/internal/logging"
)

// Message is one turn in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompleteOptions bounds a completion request.
type CompleteOptions struct {
	MaxTokens   int
	Temperature float64
}

// Completer is the completion contract consumed by the summarizer.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error)
}

// HTTPClient implements Completer against an OpenAI-compatible chat API.
type HTTPClient struct {
	rest   *resty.Client
	model  string
	logger *logging.Logger
}

// NewHTTPClient creates a completion client from configuration.
func NewHTTPClient(cfg config.LLMConfig, logger *logging.Logger) *HTTPClient {
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond).
		SetHeader("Content-Type", "application/json")

	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			rest.SetAuthToken(key)
		}
	}

	return &HTTPClient{rest: rest, model: cfg.Model, logger: logger}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a chat completion request and returns the first choice.
func (c *HTTPClient) Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	var out chatResponse

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("completion request: status %d", resp.StatusCode())
	}
	if out.Error != nil {
		return "", fmt.Errorf("completion request: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion request: empty response")
	}

	return out.Choices[0].Message.Content, nil
}
