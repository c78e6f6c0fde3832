// Package model provides the language-model capability consumed by the
// agent loop. Providers are opaque behind Generator; the HTTP client speaks
// the OpenAI-compatible chat completions surface most hosted models expose.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/odvcencio/pocketdev/pkg/errors"
)

const (
	defaultTimeout = 30 * time.Second
	maxTokens      = 1024

	// Outbound calls are limited to stay under provider quotas.
	defaultRateLimit = rate.Limit(1) // 1 request per second
	defaultBurstSize = 5
)

// Generator is the model capability: one prompt in, one completion out.
// Implementations may fail or time out; callers absorb failures as text.
type Generator interface {
	Generate(ctx context.Context, prompt, model string, temperature float64) (string, error)
}

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a Client for the given base URL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		rateLimiter: rate.NewLimiter(defaultRateLimit, defaultBurstSize),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends prompt to the provider and returns the completion text.
func (c *Client) Generate(ctx context.Context, prompt, model string, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", errors.New(errors.ErrCodeModelUnavailable, "no model API key configured")
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeModelUnavailable, "rate limiter interrupted")
	}

	if temperature < 0 {
		temperature = 0
	}
	if temperature > 1 {
		temperature = 1
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		TopP:        1,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeModelUnavailable, "model request failed").WithRetryable(true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeModelUnavailable, "failed to read model response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrCodeModelUnavailable, "model API returned %d: %s",
			resp.StatusCode, truncate(string(data), 256)).
			WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeModelUnavailable, "model response is not valid JSON")
	}
	if parsed.Error != nil {
		return "", errors.Newf(errors.ErrCodeModelUnavailable, "model API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New(errors.ErrCodeModelUnavailable, "model returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// GenerateFunc adapts a function to the Generator interface. Handy for tests
// and scripted stubs.
type GenerateFunc func(ctx context.Context, prompt, model string, temperature float64) (string, error)

func (f GenerateFunc) Generate(ctx context.Context, prompt, model string, temperature float64) (string, error) {
	return f(ctx, prompt, model, temperature)
}

var (
	_ Generator = (*Client)(nil)
	_ Generator = GenerateFunc(nil)
)

// ErrorText renders a generation failure as the textual form the loop feeds
// back into the conversation instead of crashing.
func ErrorText(err error) string {
	return fmt.Sprintf("Error calling LLM: %v", err)
}
