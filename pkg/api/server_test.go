package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderlens/tenderlens/pkg/config"
	"github.com/tenderlens/tenderlens/pkg/llm"
	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/parse"
	"github.com/tenderlens/tenderlens/pkg/services"
	"github.com/tenderlens/tenderlens/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeGateway answers structured calls with fixed payloads and chat
// streams with preset chunks.
type fakeGateway struct {
	chatChunks []string
	catalog    []models.ModelInfo
	catalogErr error
}

func (g *fakeGateway) CompleteStructured(context.Context, llm.StructuredRequest) (json.RawMessage, llm.Usage, error) {
	return json.RawMessage(`{}`), llm.Usage{}, nil
}

func (g *fakeGateway) CompleteStructuredStreaming(context.Context, llm.StructuredRequest) (json.RawMessage, llm.Usage, error) {
	return json.RawMessage(`{}`), llm.Usage{}, nil
}

func (g *fakeGateway) StreamText(_ context.Context, _ string, _ []llm.Message, _ string, _ llm.Thinking, onChunk func(string)) error {
	for _, chunk := range g.chatChunks {
		onChunk(chunk)
	}
	return nil
}

func (g *fakeGateway) ListModels(context.Context) ([]models.ModelInfo, error) {
	return g.catalog, g.catalogErr
}

func (g *fakeGateway) SearchModels(context.Context, string) ([]models.ModelInfo, error) {
	return g.catalog, g.catalogErr
}

type stubConverter struct{}

func (stubConverter) Convert(context.Context, string, []byte) (parse.ConvertResult, error) {
	return parse.ConvertResult{Markdown: "Turinys.", Pages: 1}, nil
}

func newTestServer(t *testing.T, gateway *fakeGateway) (*gin.Engine, store.Store) {
	t.Helper()

	cfg := config.Config{
		OpenRouterAPIKey:      "test-key",
		DefaultModel:          "moonshotai/kimi-k2.5",
		MaxFileSizeMB:         50,
		MaxFiles:              20,
		MaxConcurrentAnalyses: 1,
	}
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := services.New(cfg, st,
		func(apiKey, defaultModel string) services.Gateway { return gateway },
		stubConverter{}, nil, logger)
	require.NoError(t, err)

	return NewServer(svc, cfg, logger).Router(), st
}

func multipartUpload(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, data := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func seedCompleted(t *testing.T, st store.Store, id string) {
	t.Helper()
	ctx := context.Background()

	summary := "Kelio remonto darbai"
	require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{
		ID: id, Status: models.StatusCompleted, Model: "moonshotai/kimi-k2.5",
	}))
	require.NoError(t, st.UpdateAnalysis(ctx, id, models.AnalysisUpdate{
		Report: &models.Report{ProjectSummary: &summary},
	}))
	require.NoError(t, st.AddDocument(ctx, &models.Document{
		ID: id + "-d1", AnalysisID: id, Filename: "salygos.pdf",
		Type: "invitation", Pages: 2, Content: "Dokumento turinys",
	}))
}

func TestCreateAnalysisEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &fakeGateway{})

	t.Run("accepts a valid upload", func(t *testing.T) {
		body, contentType := multipartUpload(t, map[string][]byte{"salygos.pdf": []byte("data")})
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusAccepted, w.Code)
		var resp struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, "pending", resp.Status)
	})

	t.Run("rejects unsupported extension", func(t *testing.T) {
		body, contentType := multipartUpload(t, map[string][]byte{"virus.exe": []byte("data")})
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "virus.exe")
	})

	t.Run("rejects empty upload", func(t *testing.T) {
		body, contentType := multipartUpload(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetAnalysisEndpoint(t *testing.T) {
	router, st := newTestServer(t, &fakeGateway{})
	seedCompleted(t, st, "a1")

	t.Run("returns detail with progress", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyze/a1", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var detail map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
		assert.Equal(t, "completed", detail["status"])
		assert.EqualValues(t, 100, detail["progress"])
		assert.Equal(t, "Analizė užbaigta", detail["current_step"])
		assert.Len(t, detail["source_documents"], 1)
	})

	t.Run("404 for unknown id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyze/missing", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCancelAndDeleteEndpoints(t *testing.T) {
	router, st := newTestServer(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{
		ID: "running", Status: models.StatusExtracting,
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/analyze/running/cancel", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	analysis, err := st.GetAnalysis(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, analysis.Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/analyze/running", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err = st.GetAnalysis(ctx, "running")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStreamEndpointTerminalFraming(t *testing.T) {
	router, st := newTestServer(t, &fakeGateway{})
	seedCompleted(t, st, "a1")

	ctx := context.Background()
	_, err := st.AppendEvent(ctx, &models.Event{
		AnalysisID: "a1", Type: models.EventFileParsed, Stage: "parsing",
		Data: map[string]any{"filename": "salygos.pdf"},
	})
	require.NoError(t, err)
	_, err = st.AppendEvent(ctx, &models.Event{
		AnalysisID: "a1", Type: models.EventMetricsUpdate,
		Data: map[string]any{"total_files": float64(1)},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyze/a1/stream", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	// Durable events are replayed with their envelope flattened in.
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, `"event_type":"file_parsed"`)
	assert.Contains(t, body, `"filename":"salygos.pdf"`)
	assert.Contains(t, body, "event: metrics")
	// Terminal framing: one status transition, then complete, then EOF.
	assert.Contains(t, body, "event: status")
	assert.Contains(t, body, `"status":"COMPLETED"`)
	assert.Contains(t, body, "event: complete")
	assert.Equal(t, 1, strings.Count(body, "event: complete"))

	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	last := frames[len(frames)-1]
	assert.True(t, strings.HasPrefix(last, "event: complete"), "complete must be the final frame, got %q", last)
}

func TestStreamEndpointUnknownAnalysis(t *testing.T) {
	router, _ := newTestServer(t, &fakeGateway{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyze/missing/stream", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatEndpoint(t *testing.T) {
	gateway := &fakeGateway{chatChunks: []string{"Terminas ", "gruodžio 1 d."}}
	router, st := newTestServer(t, gateway)
	seedCompleted(t, st, "a1")

	t.Run("streams chunks and DONE marker", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze/a1/chat",
			strings.NewReader(`{"message":"Koks terminas?"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, `data: {"chunk":"Terminas "}`)
		assert.Contains(t, body, `data: {"chunk":"gruodžio 1 d."}`)
		assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))

		msgs, err := st.GetChatMessages(context.Background(), "a1")
		require.NoError(t, err)
		assert.Len(t, msgs, 2)
	})

	t.Run("rejects empty message", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze/a1/chat",
			strings.NewReader(`{"message":""}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unfinished analysis errors in-band", func(t *testing.T) {
		require.NoError(t, st.CreateAnalysis(context.Background(), &models.Analysis{
			ID: "busy", Status: models.StatusExtracting,
		}))
		req := httptest.NewRequest(http.MethodPost, "/api/analyze/busy/chat",
			strings.NewReader(`{"message":"Klausimas"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Contains(t, w.Body.String(), `"error":"analysis is not completed"`)
	})
}

func TestChatHistoryEndpoint(t *testing.T) {
	router, st := newTestServer(t, &fakeGateway{})
	seedCompleted(t, st, "a1")
	require.NoError(t, st.AddChatMessage(context.Background(), &models.ChatMessage{
		AnalysisID: "a1", Role: "user", Content: "Klausimas",
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyze/a1/chat/history", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Klausimas")
}

func TestListAnalysesEndpoint(t *testing.T) {
	router, st := newTestServer(t, &fakeGateway{})
	seedCompleted(t, st, "a1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyses?limit=10", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Kelio remonto darbai")
}

func TestDocumentContentEndpoint(t *testing.T) {
	router, st := newTestServer(t, &fakeGateway{})
	seedCompleted(t, st, "a1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyze/a1/documents/salygos.pdf/content", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Dokumento turinys", resp["content"])
	assert.EqualValues(t, 2, resp["page_count"])
	assert.Equal(t, "invitation", resp["doc_type"])
}

func TestModelsEndpoints(t *testing.T) {
	t.Run("returns catalog", func(t *testing.T) {
		gateway := &fakeGateway{catalog: []models.ModelInfo{
			{ID: "moonshotai/kimi-k2.5", Name: "Kimi 2.5"},
		}}
		router, _ := newTestServer(t, gateway)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/models", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Kimi 2.5")
	})

	t.Run("502 when the catalog fetch fails", func(t *testing.T) {
		gateway := &fakeGateway{catalogErr: assert.AnError}
		router, _ := newTestServer(t, gateway)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/models/search?q=kimi", nil))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestExportEndpointWithoutExporter(t *testing.T) {
	router, st := newTestServer(t, &fakeGateway{})
	seedCompleted(t, st, "a1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyze/a1/export?format=pdf", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &fakeGateway{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
