// Package parse turns uploaded document bytes into markdown text with
// metadata: page counts, Lithuanian-keyword document classification,
// and token estimates. The heavy conversion work is delegated to an
// external converter service.
package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Converter renders document bytes to markdown. One operation: bytes
// in, markdown plus a page count out.
type Converter interface {
	Convert(ctx context.Context, filename string, data []byte) (ConvertResult, error)
}

// ConvertResult is the converter's output for one document.
type ConvertResult struct {
	Markdown string `json:"markdown"`
	Pages    int    `json:"pages"`
}

type convertError struct {
	Errors []string `json:"errors"`
}

// HTTPConverter talks to the document converter service.
type HTTPConverter struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPConverter creates a converter client with the given per-call
// deadline.
func NewHTTPConverter(baseURL string, timeout time.Duration) *HTTPConverter {
	return &HTTPConverter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Convert posts the document as multipart form data and decodes the
// markdown response.
func (c *HTTPConverter) Convert(ctx context.Context, filename string, data []byte) (ConvertResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return ConvertResult{}, fmt.Errorf("write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ConvertResult{}, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", &buf)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("build convert request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("convert %s: %w", filename, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("read convert response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var convErr convertError
		if json.Unmarshal(body, &convErr) == nil && len(convErr.Errors) > 0 {
			return ConvertResult{}, fmt.Errorf("convert %s: %s", filename, strings.Join(convErr.Errors, "; "))
		}
		return ConvertResult{}, fmt.Errorf("convert %s: status %d", filename, resp.StatusCode)
	}

	var result ConvertResult
	if err := json.Unmarshal(body, &result); err != nil {
		return ConvertResult{}, fmt.Errorf("decode convert response: %w", err)
	}
	return result, nil
}
