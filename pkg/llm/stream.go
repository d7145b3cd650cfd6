package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// scanBufSize allows single SSE lines of up to 1MB.
const scanBufSize = 1024 * 1024

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			Reasoning        string `json:"reasoning"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// CompleteStructuredStreaming streams a structured completion, feeding
// reasoning tokens to req.OnThinking as they arrive. Any streaming
// problem falls back silently to the non-streaming path: a failed
// request, no accumulated content, or truncated JSON.
func (c *Client) CompleteStructuredStreaming(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error) {
	if req.OnThinking == nil {
		return c.CompleteStructured(ctx, req)
	}

	responseFormat, messages := c.buildStructured(req)
	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	body := c.buildBody(messages, req.Model, req.Thinking, &temperature, responseFormat, req.MaxTokens)
	body.Stream = true

	c.logger.Debug("Streaming structured completion", "model", body.Model, "spec", req.Spec.Name)

	content, usage, err := c.streamCompletion(ctx, body, req.OnThinking)
	if err != nil {
		c.logger.Warn("Streaming failed, falling back to non-streaming",
			"spec", req.Spec.Name, "error", err)
		return c.CompleteStructured(ctx, req)
	}

	if strings.TrimSpace(content) == "" {
		c.logger.Warn("No content accumulated from streaming, falling back to non-streaming",
			"spec", req.Spec.Name)
		return c.CompleteStructured(ctx, req)
	}

	cleaned := extractJSON(content)
	if !json.Valid([]byte(cleaned)) {
		c.logger.Warn("Streaming returned incomplete JSON, falling back to non-streaming",
			"spec", req.Spec.Name, "chars", len(content))
		return c.CompleteStructured(ctx, req)
	}

	if err := validate(req.Spec, cleaned); err != nil {
		// Syntactically valid but off-schema: the correction path can
		// still save the streamed output.
		c.logger.Warn("Streamed output failed validation, attempting correction",
			"spec", req.Spec.Name, "error", truncate(err.Error(), 200))
		corrected, correctionUsage, corrErr := c.retryWithCorrection(ctx, req, content)
		usage.add(correctionUsage)
		if corrErr != nil {
			return nil, usage, corrErr
		}
		return corrected, usage, nil
	}

	return json.RawMessage(cleaned), usage, nil
}

// streamCompletion runs one streaming request and returns the
// accumulated content. onThinking may be nil.
func (c *Client) streamCompletion(ctx context.Context, body chatRequest, onThinking func(string)) (string, Usage, error) {
	return c.streamRequest(ctx, body, onThinking, nil)
}

// StreamText streams a plain text completion, calling onChunk for each
// content delta. Used by chat Q&A. There is no fallback here: a failed
// stream is an error the caller surfaces.
func (c *Client) StreamText(ctx context.Context, system string, history []Message, model string, thinking Thinking, onChunk func(string)) error {
	messages := append([]Message{{Role: "system", Content: system}}, history...)
	body := c.buildBody(messages, model, thinking, nil, nil, 0)
	body.Stream = true

	c.logger.Debug("Streaming text completion", "model", body.Model)

	_, _, err := c.streamRequest(ctx, body, nil, onChunk)
	return err
}

func (c *Client) streamRequest(ctx context.Context, body chatRequest, onThinking, onContent func(string)) (string, Usage, error) {
	req, err := c.newRequest(ctx, "POST", "/chat/completions", body)
	if err != nil {
		return "", Usage{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", Usage{}, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var (
		full  strings.Builder
		usage Usage
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), scanBufSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Debug("Skipping unparseable SSE chunk",
				"payload", truncate(payload, 100), "error", err)
			continue
		}

		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		reasoning := delta.Reasoning
		if reasoning == "" {
			reasoning = delta.ReasoningContent
		}
		if reasoning != "" && onThinking != nil {
			onThinking(reasoning)
		}
		if delta.Content != "" {
			full.WriteString(delta.Content)
			if onContent != nil {
				onContent(delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return "", usage, ctx.Err()
		}
		return "", usage, &TransportError{Err: fmt.Errorf("read stream: %w", err)}
	}

	return full.String(), usage, nil
}

// CompleteText runs a plain text completion. Returns the content and
// token usage.
func (c *Client) CompleteText(ctx context.Context, system, user, model string, thinking Thinking) (string, Usage, error) {
	messages := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	body := c.buildBody(messages, model, thinking, nil, nil, 0)

	raw, err := c.requestWithRetry(ctx, "POST", "/chat/completions", body)
	if err != nil {
		return "", Usage{}, err
	}

	var resp completionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", Usage{}, &ParseError{Reason: fmt.Sprintf("malformed response body: %v", err)}
	}
	content, ok := resp.content()
	if !ok {
		return "", Usage{}, &ParseError{Reason: "no content in response: " + truncate(string(raw), 300)}
	}
	return content, resp.usage(), nil
}
