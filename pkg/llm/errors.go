package llm

import "fmt"

// APIError is a non-retryable 4xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, truncate(e.Body, 500))
}

// RateLimitError is an HTTP 429 that survived all retries.
type RateLimitError struct {
	Body string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s", truncate(e.Body, 200))
}

// ServerError is an HTTP 5xx that survived all retries.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// ParseError means the model's output could not be turned into the
// requested structure, even after the correction retry.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// TransportError wraps network-level failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
