// Package llm is the OpenRouter gateway: structured completions with
// retries and schema repair, streaming with live reasoning callbacks,
// plain text completions, and model listing.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"
)

const (
	maxRetries = 3

	defaultMaxTokens   = 32000
	defaultTemperature = 0.1

	requestTimeout = 300 * time.Second
	connectTimeout = 10 * time.Second
)

// backoffSeconds are the base delays between retry attempts; each is
// multiplied by a uniform jitter in [1.0, 1.5).
var backoffSeconds = []int{2, 4, 8}

// Thinking selects the model's reasoning budget.
type Thinking string

const (
	ThinkingOff    Thinking = "off"
	ThinkingLow    Thinking = "low"
	ThinkingMedium Thinking = "medium"
	ThinkingHigh   Thinking = "high"
)

func (t Thinking) budget() int {
	switch t {
	case ThinkingLow:
		return 2000
	case ThinkingMedium:
		return 5000
	case ThinkingHigh:
		return 10000
	default:
		return 0
	}
}

// Usage is the token accounting for one logical completion, summed
// across internal retries and repair calls.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (u *Usage) add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Client is the OpenRouter API client. Safe for concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	defaultModel string
	httpClient   *http.Client
	logger       *slog.Logger

	// sleep is replaceable in tests to skip real backoff delays.
	sleep func(time.Duration)
}

// NewClient creates a gateway client.
func NewClient(baseURL, apiKey, defaultModel string, logger *slog.Logger) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		defaultModel: defaultModel,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
		logger: logger,
		sleep:  time.Sleep,
	}
}

// DefaultModel returns the model used when a request names none.
func (c *Client) DefaultModel() string { return c.defaultModel }

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat any             `json:"response_format,omitempty"`
	Thinking       *thinkingConfig `json:"thinking,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

func (c *Client) buildBody(messages []Message, model string, thinking Thinking, temperature *float64, responseFormat any, maxTokens int) chatRequest {
	if model == "" {
		model = c.defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	req := chatRequest{
		Model:          model,
		Messages:       messages,
		MaxTokens:      maxTokens,
		Temperature:    temperature,
		ResponseFormat: responseFormat,
	}
	if budget := thinking.budget(); budget > 0 {
		req.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: budget}
	}
	return req
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://tenderlens.app")
	req.Header.Set("X-Title", "TenderLens")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// requestWithRetry executes the request up to maxRetries times.
// 429 and 5xx responses and transport failures are retried with
// jittered exponential backoff; other 4xx responses fail immediately.
func (c *Client) requestWithRetry(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("HTTP transport error",
				"attempt", attempt+1, "max_attempts", maxRetries, "error", err)
			lastErr = &TransportError{Err: err}
		} else {
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = &TransportError{Err: readErr}
			} else {
				switch {
				case resp.StatusCode == http.StatusTooManyRequests:
					c.logger.Warn("Rate limited (429)",
						"attempt", attempt+1, "max_attempts", maxRetries,
						"body", truncate(string(body), 200))
					lastErr = &RateLimitError{Body: string(body)}
				case resp.StatusCode >= 500:
					c.logger.Warn("Server error",
						"status", resp.StatusCode,
						"attempt", attempt+1, "max_attempts", maxRetries,
						"body", truncate(string(body), 200))
					lastErr = &ServerError{StatusCode: resp.StatusCode, Body: string(body)}
				case resp.StatusCode >= 400:
					return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
				default:
					return body, nil
				}
			}
		}

		if attempt < maxRetries-1 {
			base := backoffSeconds[attempt]
			wait := time.Duration(float64(base) * (1 + rand.Float64()*0.5) * float64(time.Second))
			c.logger.Debug("Backing off before retry", "wait", wait, "base_seconds", base)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				c.sleep(wait)
			}
		}
	}
	return nil, lastErr
}

// completionResponse is the subset of the chat completion body we use.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (r *completionResponse) usage() Usage {
	return Usage{InputTokens: r.Usage.PromptTokens, OutputTokens: r.Usage.CompletionTokens}
}

func (r *completionResponse) content() (string, bool) {
	if len(r.Choices) == 0 {
		return "", false
	}
	return r.Choices[0].Message.Content, true
}
