package parse

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// charsPerToken is the rough markdown-to-token ratio used for
	// budget estimates throughout the pipeline.
	charsPerToken = 4
	// charsPerPage backs page estimation when the converter reports
	// no page count.
	charsPerPage = 3000
	// previewChars bounds how much content classification reads.
	previewChars = 2000
)

var sheetHeading = regexp.MustCompile(`(?m)^##\s`)

// Document is one parsed file ready for extraction.
type Document struct {
	Filename      string
	Content       string
	Pages         int
	SizeBytes     int64
	Format        string
	Type          string
	TokenEstimate int
	// Failed marks documents whose conversion errored; Content then
	// holds the error sentinel instead of markdown.
	Failed bool
}

// Parser converts raw files into classified markdown documents.
type Parser struct {
	converter Converter
	logger    *slog.Logger
}

func NewParser(converter Converter, logger *slog.Logger) *Parser {
	return &Parser{converter: converter, logger: logger}
}

// ParseFile converts one file. Conversion failures never propagate as
// errors: the document comes back with an error sentinel as content so
// the pipeline can continue with the remaining files and the report
// can name what was skipped.
func (p *Parser) ParseFile(ctx context.Context, filename string, data []byte) Document {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")

	result, err := p.converter.Convert(ctx, filename, data)
	if err != nil {
		content := fmt.Sprintf("[ERROR] Failed to parse %s: %v", filename, err)
		p.logger.Error("Document conversion failed", "filename", filename, "error", err)
		return Document{
			Filename:      filename,
			Content:       content,
			SizeBytes:     int64(len(data)),
			Format:        format,
			Type:          Classify(filename, ""),
			TokenEstimate: len(content) / charsPerToken,
			Failed:        true,
		}
	}

	markdown := result.Markdown
	pages := result.Pages
	if pages <= 0 {
		pages = EstimatePages(markdown, format)
	}

	preview := markdown
	if len(preview) > previewChars {
		preview = preview[:previewChars]
	}
	docType := Classify(filename, preview)
	tokens := len(markdown) / charsPerToken

	p.logger.Info("Parsed document",
		"filename", filename,
		"pages", pages,
		"chars", len(markdown),
		"token_estimate", tokens,
		"type", docType)

	return Document{
		Filename:      filename,
		Content:       markdown,
		Pages:         pages,
		SizeBytes:     int64(len(data)),
		Format:        format,
		Type:          docType,
		TokenEstimate: tokens,
	}
}

// EstimatePages guesses a page count from content length. Spreadsheet
// formats count one page per sheet heading; everything else assumes
// ~3000 characters per page. Any non-empty content is at least one
// page.
func EstimatePages(content, format string) int {
	if content == "" {
		return 0
	}
	if format == "xlsx" || format == "xls" {
		if sheets := len(sheetHeading.FindAllString(content, -1)); sheets > 0 {
			return sheets
		}
		return 1
	}
	pages := len(content) / charsPerPage
	if pages < 1 {
		pages = 1
	}
	return pages
}
