package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderlens/tenderlens/pkg/config"
	"github.com/tenderlens/tenderlens/pkg/export"
	"github.com/tenderlens/tenderlens/pkg/llm"
	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/parse"
	"github.com/tenderlens/tenderlens/pkg/store"
)

const testReportJSON = `{
	"project_summary": "Mokyklos renovacijos darbai",
	"key_requirements": ["ISO 9001 sertifikatas"],
	"source_documents": [],
	"confidence_notes": []
}`

const testQAJSON = `{
	"completeness_score": 0.85,
	"missing_fields": [],
	"conflicts": [],
	"suggestions": []
}`

// fakeGateway satisfies the full Gateway surface. Structured calls
// answer with canned report/QA payloads; StreamText replays chunks.
type fakeGateway struct {
	mu sync.Mutex

	structuredCalls []llm.StructuredRequest
	chatCalls       []chatCall
	chatChunks      []string
	chatErr         error
	modelCatalog    []models.ModelInfo
}

type chatCall struct {
	system  string
	history []llm.Message
	model   string
}

func (g *fakeGateway) respond(req llm.StructuredRequest) (json.RawMessage, llm.Usage, error) {
	g.mu.Lock()
	g.structuredCalls = append(g.structuredCalls, req)
	g.mu.Unlock()

	if req.Spec != nil && req.Spec.Name == "qa_evaluation" {
		return json.RawMessage(testQAJSON), llm.Usage{InputTokens: 30, OutputTokens: 15}, nil
	}
	return json.RawMessage(testReportJSON), llm.Usage{InputTokens: 100, OutputTokens: 50}, nil
}

func (g *fakeGateway) CompleteStructured(_ context.Context, req llm.StructuredRequest) (json.RawMessage, llm.Usage, error) {
	return g.respond(req)
}

func (g *fakeGateway) CompleteStructuredStreaming(_ context.Context, req llm.StructuredRequest) (json.RawMessage, llm.Usage, error) {
	return g.respond(req)
}

func (g *fakeGateway) StreamText(_ context.Context, system string, history []llm.Message, model string, _ llm.Thinking, onChunk func(string)) error {
	g.mu.Lock()
	g.chatCalls = append(g.chatCalls, chatCall{system: system, history: history, model: model})
	g.mu.Unlock()

	if g.chatErr != nil {
		return g.chatErr
	}
	for _, chunk := range g.chatChunks {
		onChunk(chunk)
	}
	return nil
}

func (g *fakeGateway) ListModels(context.Context) ([]models.ModelInfo, error) {
	return g.modelCatalog, nil
}

func (g *fakeGateway) SearchModels(context.Context, string) ([]models.ModelInfo, error) {
	return g.modelCatalog, nil
}

// stubConverter returns fixed markdown for every file.
type stubConverter struct{}

func (stubConverter) Convert(_ context.Context, _ string, _ []byte) (parse.ConvertResult, error) {
	return parse.ConvertResult{Markdown: "Pirkimo dokumento turinys.", Pages: 1}, nil
}

func testConfig() config.Config {
	return config.Config{
		OpenRouterAPIKey:      "env-key",
		DefaultModel:          "moonshotai/kimi-k2.5",
		MaxFileSizeMB:         50,
		MaxFiles:              20,
		MaxConcurrentAnalyses: 2,
	}
}

func newTestService(t *testing.T, cfg config.Config, gateway *fakeGateway, exporter export.Exporter) (*Service, store.Store) {
	t.Helper()

	st := store.NewMemoryStore()
	factory := func(apiKey, defaultModel string) Gateway { return gateway }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := New(cfg, st, factory, stubConverter{}, exporter, logger)
	require.NoError(t, err)
	return svc, st
}

func waitTerminal(t *testing.T, st store.Store, id string) *models.Analysis {
	t.Helper()

	var analysis *models.Analysis
	require.Eventually(t, func() bool {
		a, err := st.GetAnalysis(context.Background(), id)
		if err != nil {
			return false
		}
		analysis = a
		return a.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return analysis
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, testConfig(), &fakeGateway{}, nil)
	ctx := context.Background()

	t.Run("no files", func(t *testing.T) {
		_, err := svc.Create(ctx, nil, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("too many files", func(t *testing.T) {
		uploads := make([]Upload, 21)
		for i := range uploads {
			uploads[i] = Upload{Filename: "doc.pdf", Data: []byte("x")}
		}
		_, err := svc.Create(ctx, uploads, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Contains(t, err.Error(), "too many files")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := svc.Create(ctx, []Upload{{Filename: "virus.exe", Data: []byte("x")}}, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Contains(t, err.Error(), "virus.exe")
	})

	t.Run("oversized file", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxFileSizeMB = 0
		small, _ := newTestService(t, cfg, &fakeGateway{}, nil)
		_, err := small.Create(ctx, []Upload{{Filename: "a.pdf", Data: []byte("x")}}, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestCreateRunsToCompletion(t *testing.T) {
	gateway := &fakeGateway{}
	svc, st := newTestService(t, testConfig(), gateway, nil)
	ctx := context.Background()

	detail, err := svc.Create(ctx, []Upload{
		{Filename: "salygos.pdf", Data: []byte("turinys")},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, detail.Status)
	assert.Equal(t, "moonshotai/kimi-k2.5", detail.Model)
	assert.Equal(t, "Laukiama...", detail.CurrentStep)

	analysis := waitTerminal(t, st, detail.ID)
	assert.Equal(t, models.StatusCompleted, analysis.Status)
	require.NotNil(t, analysis.Report)
	assert.Equal(t, "Mokyklos renovacijos darbai", *analysis.Report.ProjectSummary)
	require.NotNil(t, analysis.QA)
	assert.InDelta(t, 0.85, analysis.QA.CompletenessScore, 1e-9)
}

func TestCreateWithoutAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.OpenRouterAPIKey = ""
	gateway := &fakeGateway{}
	svc, st := newTestService(t, cfg, gateway, nil)

	detail, err := svc.Create(context.Background(), []Upload{
		{Filename: "salygos.pdf", Data: []byte("turinys")},
	}, "")
	require.NoError(t, err)

	analysis := waitTerminal(t, st, detail.ID)
	assert.Equal(t, models.StatusFailed, analysis.Status)
	assert.Equal(t, "OpenRouter API key not configured. Set it in Settings.", analysis.Error)
	assert.Empty(t, gateway.structuredCalls)
}

func TestAPIKeyFromSettings(t *testing.T) {
	cfg := testConfig()
	cfg.OpenRouterAPIKey = ""
	gateway := &fakeGateway{}
	svc, st := newTestService(t, cfg, gateway, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetSetting(ctx, SettingOpenRouterKey, "stored-key"))

	detail, err := svc.Create(ctx, []Upload{
		{Filename: "salygos.pdf", Data: []byte("turinys")},
	}, "")
	require.NoError(t, err)

	analysis := waitTerminal(t, st, detail.ID)
	assert.Equal(t, models.StatusCompleted, analysis.Status)
}

func TestProgress(t *testing.T) {
	svc, st := newTestService(t, testConfig(), &fakeGateway{}, nil)
	ctx := context.Background()

	seeded := 0
	seed := func(t *testing.T, status models.AnalysisStatus) string {
		t.Helper()
		seeded++
		id := "progress-" + strconv.Itoa(seeded) + "-" + string(status)
		require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{ID: id, Status: status}))
		return id
	}

	cases := []struct {
		status   models.AnalysisStatus
		progress int
		step     string
	}{
		{models.StatusPending, 0, "Laukiama..."},
		{models.StatusUnpacking, 5, "Išpakuojami ZIP failai..."},
		{models.StatusParsing, 15, "Analizuojami dokumentai..."},
		{models.StatusAggregating, 70, "Sujungiami rezultatai..."},
		{models.StatusEvaluating, 85, "Vertinama kokybė..."},
		{models.StatusCompleted, 100, "Analizė užbaigta"},
		{models.StatusFailed, 0, "Klaida"},
		{models.StatusCanceled, 0, "Atšaukta"},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			id := seed(t, tc.status)
			detail, err := svc.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tc.progress, detail.Progress)
			assert.Equal(t, tc.step, detail.CurrentStep)
		})
	}

	t.Run("extracting moves with completed documents", func(t *testing.T) {
		id := seed(t, models.StatusExtracting)
		for i := 0; i < 4; i++ {
			_, err := st.AppendEvent(ctx, &models.Event{
				AnalysisID: id,
				Type:       models.EventExtractionStarted,
				Data:       map[string]any{"total": float64(4)},
			})
			require.NoError(t, err)
		}
		for i := 0; i < 2; i++ {
			_, err := st.AppendEvent(ctx, &models.Event{
				AnalysisID: id,
				Type:       models.EventExtractionCompleted,
			})
			require.NoError(t, err)
		}

		detail, err := svc.Get(ctx, id)
		require.NoError(t, err)
		// 40 + 50% of the 30-point band.
		assert.Equal(t, 55, detail.Progress)
	})

	t.Run("extracting with no events stays at band start", func(t *testing.T) {
		id := seed(t, models.StatusExtracting)
		detail, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 40, detail.Progress)
	})
}

func TestCancel(t *testing.T) {
	svc, st := newTestService(t, testConfig(), &fakeGateway{}, nil)
	ctx := context.Background()

	t.Run("running analysis is canceled", func(t *testing.T) {
		require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{
			ID: "run", Status: models.StatusExtracting,
		}))
		require.NoError(t, svc.Cancel(ctx, "run"))

		analysis, err := st.GetAnalysis(ctx, "run")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCanceled, analysis.Status)
	})

	t.Run("terminal analysis is left untouched", func(t *testing.T) {
		require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{
			ID: "done", Status: models.StatusCompleted,
		}))
		require.NoError(t, svc.Cancel(ctx, "done"))

		analysis, err := st.GetAnalysis(ctx, "done")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, analysis.Status)
	})

	t.Run("unknown analysis", func(t *testing.T) {
		assert.ErrorIs(t, svc.Cancel(ctx, "missing"), store.ErrNotFound)
	})
}

func TestList(t *testing.T) {
	svc, st := newTestService(t, testConfig(), &fakeGateway{}, nil)
	ctx := context.Background()

	summary := "Kelio remontas"
	require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{ID: "a1", Status: models.StatusCompleted}))
	require.NoError(t, st.UpdateAnalysis(ctx, "a1", models.AnalysisUpdate{
		Report:  &models.Report{ProjectSummary: &summary},
		Metrics: &models.Metrics{TotalFiles: 3},
	}))
	require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{ID: "a2", Status: models.StatusPending}))

	summaries, err := svc.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := map[string]*models.AnalysisSummary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}
	require.NotNil(t, byID["a1"].ProjectSummary)
	assert.Equal(t, "Kelio remontas", *byID["a1"].ProjectSummary)
	assert.Equal(t, 3, byID["a1"].FileCount)
	assert.Nil(t, byID["a2"].ProjectSummary)
}

func TestDocumentContent(t *testing.T) {
	svc, st := newTestService(t, testConfig(), &fakeGateway{}, nil)
	ctx := context.Background()

	require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{ID: "a1", Status: models.StatusCompleted}))
	require.NoError(t, st.AddDocument(ctx, &models.Document{
		ID: "d1", AnalysisID: "a1", Filename: "salygos.pdf",
		Type: "invitation", Pages: 3, Content: "Turinys",
	}))

	doc, err := svc.DocumentContent(ctx, "a1", "salygos.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Turinys", doc.Content)
	assert.Equal(t, 3, doc.Pages)

	_, err = svc.DocumentContent(ctx, "a1", "kita.pdf")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("no exporter configured", func(t *testing.T) {
		svc, st := newTestService(t, testConfig(), &fakeGateway{}, nil)
		require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{ID: "a1", Status: models.StatusCompleted}))
		_, err := svc.Export(ctx, "a1", export.FormatPDF)
		assert.ErrorIs(t, err, ErrExportUnavailable)
	})

	t.Run("not completed", func(t *testing.T) {
		svc, st := newTestService(t, testConfig(), &fakeGateway{}, exporterFunc(nil))
		require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{ID: "a1", Status: models.StatusExtracting}))
		_, err := svc.Export(ctx, "a1", export.FormatPDF)
		assert.ErrorIs(t, err, ErrNotCompleted)
	})

	t.Run("renders completed report", func(t *testing.T) {
		rendered := export.Rendered{
			Data: []byte("%PDF"), Filename: "procurement_report_a1.pdf", MediaType: "application/pdf",
		}
		var gotFormat export.Format
		exp := exporterFunc(func(_ context.Context, _ string, report *models.Report, _ *models.QAEvaluation, _ string, format export.Format) (export.Rendered, error) {
			require.NotNil(t, report)
			gotFormat = format
			return rendered, nil
		})

		svc, st := newTestService(t, testConfig(), &fakeGateway{}, exp)
		summary := "Santrauka"
		require.NoError(t, st.CreateAnalysis(ctx, &models.Analysis{ID: "a1", Status: models.StatusCompleted}))
		require.NoError(t, st.UpdateAnalysis(ctx, "a1", models.AnalysisUpdate{
			Report: &models.Report{ProjectSummary: &summary},
		}))

		got, err := svc.Export(ctx, "a1", export.FormatDOCX)
		require.NoError(t, err)
		assert.Equal(t, rendered, got)
		assert.Equal(t, export.FormatDOCX, gotFormat)
	})
}

// exporterFunc adapts a function to export.Exporter.
type exporterFunc func(ctx context.Context, analysisID string, report *models.Report, qa *models.QAEvaluation, modelUsed string, format export.Format) (export.Rendered, error)

func (f exporterFunc) Render(ctx context.Context, analysisID string, report *models.Report, qa *models.QAEvaluation, modelUsed string, format export.Format) (export.Rendered, error) {
	return f(ctx, analysisID, report, qa, modelUsed, format)
}
