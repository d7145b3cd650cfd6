package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/tenderlens/tenderlens/pkg/prompts"
	"github.com/tenderlens/tenderlens/pkg/schema"
)

// maxEmptyRetries bounds the re-asks after provider responses with no
// content (cold starts are a known provider quirk).
const maxEmptyRetries = 2

// OutputSpec is a prepared structured-output target: the cleaned wire
// schema, a compiled validator, and the compact type hint for
// providers that cannot enforce schemas.
type OutputSpec struct {
	Name      string
	cleaned   map[string]any
	validator *schema.Validator
	hint      string
}

// NewOutputSpec cleans and compiles the schema once so per-request
// work is just marshaling.
func NewOutputSpec(name string, raw map[string]any) (*OutputSpec, error) {
	cleaned := schema.Clean(raw)
	validator, err := schema.NewValidator(cleaned)
	if err != nil {
		return nil, fmt.Errorf("compile output spec %s: %w", name, err)
	}
	return &OutputSpec{
		Name:      name,
		cleaned:   cleaned,
		validator: validator,
		hint:      schema.TypeHint(raw),
	}, nil
}

// StructuredRequest describes one structured completion.
type StructuredRequest struct {
	System      string
	User        string
	Spec        *OutputSpec
	Model       string
	Temperature *float64 // nil means 0.1
	Thinking    Thinking
	MaxTokens   int
	// OnThinking receives live reasoning tokens. Setting it switches
	// the request to streaming with silent non-streaming fallbacks.
	OnThinking func(text string)
}

func isAnthropic(model string) bool {
	return strings.HasPrefix(model, "anthropic/")
}

// buildStructured prepares the response_format and messages for the
// resolved model family. Anthropic models get json_object mode plus a
// compact type hint appended to the system prompt and an ephemeral
// cache_control block; everything else gets strict json_schema.
func (c *Client) buildStructured(req StructuredRequest) (any, []Message) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	if isAnthropic(model) {
		system := req.System +
			"\n\nRespond with valid JSON object. Field types: " + req.Spec.hint
		messages := []Message{
			{
				Role: "system",
				Content: []map[string]any{{
					"type":          "text",
					"text":          system,
					"cache_control": map[string]any{"type": "ephemeral"},
				}},
			},
			{Role: "user", Content: req.User},
		}
		return map[string]any{"type": "json_object"}, messages
	}

	responseFormat := map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   req.Spec.Name,
			"schema": req.Spec.cleaned,
		},
	}
	messages := []Message{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.User},
	}
	return responseFormat, messages
}

// CompleteStructured runs a structured completion and returns the
// validated JSON object plus token usage. The usage sums every
// internal retry and the repair call.
func (c *Client) CompleteStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error) {
	return c.completeStructured(ctx, req, 0)
}

func (c *Client) completeStructured(ctx context.Context, req StructuredRequest, emptyRetry int) (json.RawMessage, Usage, error) {
	responseFormat, messages := c.buildStructured(req)

	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	body := c.buildBody(messages, req.Model, req.Thinking, &temperature, responseFormat, req.MaxTokens)

	c.logger.Debug("Structured completion request", "model", body.Model, "spec", req.Spec.Name)

	raw, err := c.requestWithRetry(ctx, "POST", "/chat/completions", body)
	if err != nil {
		return nil, Usage{}, err
	}

	var resp completionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, Usage{}, &ParseError{Reason: fmt.Sprintf("malformed response body: %v", err)}
	}
	content, ok := resp.content()
	if !ok {
		return nil, Usage{}, &ParseError{Reason: "no content in response: " + truncate(string(raw), 300)}
	}

	if strings.TrimSpace(content) == "" {
		if emptyRetry < maxEmptyRetries {
			wait := time.Duration((1.5 + rand.Float64()*1.5) * float64(emptyRetry+1) * float64(time.Second))
			c.logger.Warn("Empty response, re-asking",
				"spec", req.Spec.Name, "attempt", emptyRetry+1, "wait", wait)
			select {
			case <-ctx.Done():
				return nil, Usage{}, ctx.Err()
			default:
				c.sleep(wait)
			}
			return c.completeStructured(ctx, req, emptyRetry+1)
		}
		return nil, Usage{}, &ParseError{Reason: "empty response after 3 attempts for " + req.Spec.Name}
	}

	usage := resp.usage()
	cleaned := extractJSON(content)
	if err := validate(req.Spec, cleaned); err != nil {
		c.logger.Warn("Structured output failed validation, attempting correction",
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

// retryWithCorrection asks the model once, at temperature zero with
// thinking off, to convert its broken output into schema-valid JSON.
func (c *Client) retryWithCorrection(ctx context.Context, req StructuredRequest, originalContent string) (json.RawMessage, Usage, error) {
	schemaJSON, err := json.MarshalIndent(req.Spec.cleaned, "", "  ")
	if err != nil {
		return nil, Usage{}, fmt.Errorf("encode schema: %w", err)
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	var responseFormat any = map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   req.Spec.Name,
			"schema": req.Spec.cleaned,
		},
	}
	if isAnthropic(model) {
		responseFormat = map[string]any{"type": "json_object"}
	}

	messages := []Message{
		{Role: "system", Content: prompts.CorrectionSystem},
		{Role: "user", Content: prompts.CorrectionUser(originalContent, string(schemaJSON))},
	}
	zero := 0.0
	body := c.buildBody(messages, req.Model, ThinkingOff, &zero, responseFormat, 0)

	raw, err := c.requestWithRetry(ctx, "POST", "/chat/completions", body)
	if err != nil {
		return nil, Usage{}, err
	}

	var resp completionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, Usage{}, &ParseError{Reason: fmt.Sprintf("malformed correction body: %v", err)}
	}
	content, ok := resp.content()
	if !ok || strings.TrimSpace(content) == "" {
		return nil, resp.usage(), &ParseError{Reason: "empty correction response for " + req.Spec.Name}
	}

	cleaned := extractJSON(content)
	if err := validate(req.Spec, cleaned); err != nil {
		return nil, resp.usage(), &ParseError{
			Reason: fmt.Sprintf("output invalid after correction retry: %v; content: %s",
				err, truncate(cleaned, 500)),
		}
	}

	c.logger.Info("Correction retry succeeded", "spec", req.Spec.Name)
	return json.RawMessage(cleaned), resp.usage(), nil
}

func validate(spec *OutputSpec, content string) error {
	var value any
	if err := json.Unmarshal([]byte(content), &value); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return spec.validator.Validate(value)
}
