// Package export renders completed analysis reports to downloadable
// documents. Rendering is delegated to an external service; this
// package owns only the boundary.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/tenderlens/tenderlens/pkg/models"
)

// Format selects the output document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat validates a format string from a request.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Rendered is one generated report document.
type Rendered struct {
	Data      []byte
	Filename  string
	MediaType string
}

// Exporter renders a report to a downloadable document.
type Exporter interface {
	Render(ctx context.Context, analysisID string, report *models.Report, qa *models.QAEvaluation, modelUsed string, format Format) (Rendered, error)
}

// HTTPExporter talks to the report rendering service.
type HTTPExporter struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPExporter creates an exporter client.
func NewHTTPExporter(baseURL string, timeout time.Duration) *HTTPExporter {
	return &HTTPExporter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type renderRequest struct {
	Report    *models.Report       `json:"report"`
	QA        *models.QAEvaluation `json:"qa,omitempty"`
	ModelUsed string               `json:"model_used,omitempty"`
}

// Render posts the report and returns the rendered document bytes.
func (e *HTTPExporter) Render(ctx context.Context, analysisID string, report *models.Report, qa *models.QAEvaluation, modelUsed string, format Format) (Rendered, error) {
	payload, err := json.Marshal(renderRequest{Report: report, QA: qa, ModelUsed: modelUsed})
	if err != nil {
		return Rendered{}, fmt.Errorf("encode render request: %w", err)
	}

	url := fmt.Sprintf("%s/render/%s", e.baseURL, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Rendered{}, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", format, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Rendered{}, fmt.Errorf("render %s: status %d: %s", format, resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Rendered{}, fmt.Errorf("read rendered document: %w", err)
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = defaultMediaType(format)
	} else if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}

	short := analysisID
	if len(short) > 8 {
		short = short[:8]
	}
	return Rendered{
		Data:      data,
		Filename:  fmt.Sprintf("procurement_report_%s.%s", short, format),
		MediaType: mediaType,
	}, nil
}

func defaultMediaType(format Format) string {
	if format == FormatDOCX {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/pdf"
}
