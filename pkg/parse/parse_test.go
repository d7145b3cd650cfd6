package parse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		preview  string
		expected string
	}{
		{"technical spec by filename", "Techninė specifikacija.pdf", "", TypeTechnicalSpec},
		{"technical spec ascii", "technine_spec.docx", "", TypeTechnicalSpec},
		{"contract", "Pirkimo sutartis.docx", "", TypeContract},
		{"invitation", "Kvietimas dalyvauti.pdf", "", TypeInvitation},
		{"announcement is invitation", "skelbimas.pdf", "", TypeInvitation},
		{"qualification", "Kvalifikacijos reikalavimai.pdf", "", TypeQualification},
		{"evaluation", "Vertinimo kriterijai.xlsx", "", TypeEvaluation},
		{"annex", "Priedas Nr. 3.docx", "", TypeAnnex},
		{"annex form", "Pasiūlymo forma.docx", "", TypeAnnex},
		{"case insensitive", "SUTARTIS.PDF", "", TypeContract},
		{"falls back to content", "dokumentas.pdf", "Šio pirkimo sutarties projektas", TypeContract},
		{"filename wins over content", "sutartis.pdf", "techninė specifikacija", TypeContract},
		{"earlier rule wins in content", "dokumentas.pdf", "specifikacija ir sutartis", TypeTechnicalSpec},
		{"nothing matches", "dokumentas.pdf", "bendro pobūdžio tekstas", TypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.filename, tt.preview))
		})
	}
}

func TestEstimatePages(t *testing.T) {
	t.Run("empty content is zero pages", func(t *testing.T) {
		assert.Equal(t, 0, EstimatePages("", "pdf"))
	})

	t.Run("short content is one page", func(t *testing.T) {
		assert.Equal(t, 1, EstimatePages("trumpas tekstas", "pdf"))
	})

	t.Run("three thousand chars per page", func(t *testing.T) {
		assert.Equal(t, 3, EstimatePages(strings.Repeat("a", 9500), "pdf"))
	})

	t.Run("spreadsheets count sheet headings", func(t *testing.T) {
		content := "## Lapas1\ndata\n## Lapas2\ndata\n## Lapas3\ndata\n"
		assert.Equal(t, 3, EstimatePages(content, "xlsx"))
	})

	t.Run("spreadsheet without headings is one page", func(t *testing.T) {
		assert.Equal(t, 1, EstimatePages("| a | b |", "xlsx"))
	})
}

type stubConverter struct {
	result ConvertResult
	err    error
}

func (s *stubConverter) Convert(context.Context, string, []byte) (ConvertResult, error) {
	return s.result, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFile(t *testing.T) {
	t.Run("successful conversion", func(t *testing.T) {
		content := strings.Repeat("Pirkimo dokumento tekstas. ", 300)
		p := NewParser(&stubConverter{result: ConvertResult{Markdown: content, Pages: 4}}, testLogger())

		doc := p.ParseFile(context.Background(), "sutartis.docx", []byte("raw-bytes"))

		assert.Equal(t, "sutartis.docx", doc.Filename)
		assert.Equal(t, content, doc.Content)
		assert.Equal(t, 4, doc.Pages)
		assert.Equal(t, int64(9), doc.SizeBytes)
		assert.Equal(t, "docx", doc.Format)
		assert.Equal(t, TypeContract, doc.Type)
		assert.Equal(t, len(content)/4, doc.TokenEstimate)
		assert.False(t, doc.Failed)
	})

	t.Run("missing page count estimated", func(t *testing.T) {
		content := strings.Repeat("a", 7000)
		p := NewParser(&stubConverter{result: ConvertResult{Markdown: content}}, testLogger())

		doc := p.ParseFile(context.Background(), "dokumentas.pdf", nil)
		assert.Equal(t, 2, doc.Pages)
	})

	t.Run("converter failure produces error sentinel document", func(t *testing.T) {
		p := NewParser(&stubConverter{err: errors.New("timeout")}, testLogger())

		doc := p.ParseFile(context.Background(), "blogas.pdf", []byte("raw"))

		assert.True(t, doc.Failed)
		assert.Contains(t, doc.Content, "[ERROR] Failed to parse blogas.pdf")
		assert.Equal(t, 0, doc.Pages)
		assert.Equal(t, TypeOther, doc.Type)
		assert.Equal(t, len(doc.Content)/4, doc.TokenEstimate)
	})

	t.Run("classification reads content preview", func(t *testing.T) {
		p := NewParser(&stubConverter{result: ConvertResult{
			Markdown: "Kvalifikacijos reikalavimai tiekėjams...", Pages: 1,
		}}, testLogger())

		doc := p.ParseFile(context.Background(), "dokumentas.pdf", nil)
		assert.Equal(t, TypeQualification, doc.Type)
	})
}

func TestHTTPConverter(t *testing.T) {
	t.Run("posts multipart and decodes result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/convert", r.URL.Path)
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "pasiulymas.pdf", header.Filename)
			data, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, "pdf-bytes", string(data))

			_, _ = w.Write([]byte(`{"markdown": "# Pasiūlymas", "pages": 2}`))
		}))
		defer server.Close()

		c := NewHTTPConverter(server.URL, 5*time.Second)
		result, err := c.Convert(context.Background(), "pasiulymas.pdf", []byte("pdf-bytes"))

		require.NoError(t, err)
		assert.Equal(t, "# Pasiūlymas", result.Markdown)
		assert.Equal(t, 2, result.Pages)
	})

	t.Run("structured error list surfaced", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors": ["corrupt file", "unsupported encoding"]}`))
		}))
		defer server.Close()

		c := NewHTTPConverter(server.URL, 5*time.Second)
		_, err := c.Convert(context.Background(), "blogas.pdf", nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupt file; unsupported encoding")
	})

	t.Run("plain non-200 surfaced with status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := NewHTTPConverter(server.URL, 5*time.Second)
		_, err := c.Convert(context.Background(), "dokumentas.pdf", nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 502")
	})
}
