// Package pipeline orchestrates an analysis run end to end: unpack the
// uploads, parse every document, extract structured facts per document,
// aggregate them into one report, evaluate its completeness, and
// persist the result. Progress flows out on two lanes: durable events
// through the store and ephemeral thinking tokens through the registry.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tenderlens/tenderlens/pkg/events"
	"github.com/tenderlens/tenderlens/pkg/llm"
	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/parse"
	"github.com/tenderlens/tenderlens/pkg/schema"
	"github.com/tenderlens/tenderlens/pkg/store"
	"github.com/tenderlens/tenderlens/pkg/unpack"
)

// Reference display rate in USD per million tokens (Claude Sonnet
// class). Used only for the cost estimate shown to users.
const (
	costPerMInputUSD  = 3.0
	costPerMOutputUSD = 15.0
)

var errCanceled = errors.New("analysis canceled")

// Gateway is the LLM surface the pipeline needs. *llm.Client satisfies
// it; tests substitute a mock.
type Gateway interface {
	CompleteStructured(ctx context.Context, req llm.StructuredRequest) (json.RawMessage, llm.Usage, error)
	CompleteStructuredStreaming(ctx context.Context, req llm.StructuredRequest) (json.RawMessage, llm.Usage, error)
}

// Config bounds the pipeline's fan-out.
type Config struct {
	ParseConcurrency   int
	ExtractConcurrency int
	// ChunkConcurrency caps parallel chunk extraction inside one
	// oversized document.
	ChunkConcurrency int
	// ContextLength is the assumed model context window in tokens,
	// used to size chunks and the aggregation prompt budget.
	ContextLength int
}

// DefaultConfig matches the documented concurrency caps.
func DefaultConfig() Config {
	return Config{
		ParseConcurrency:   5,
		ExtractConcurrency: 5,
		ChunkConcurrency:   3,
		ContextLength:      200_000,
	}
}

// Specs holds the two structured-output targets, compiled once at
// process start and shared by every run.
type Specs struct {
	Report *llm.OutputSpec
	QA     *llm.OutputSpec
}

// NewSpecs compiles the report and QA schemas.
func NewSpecs() (*Specs, error) {
	report, err := llm.NewOutputSpec("extraction_result", schema.ReportSchema())
	if err != nil {
		return nil, fmt.Errorf("compile report spec: %w", err)
	}
	qa, err := llm.NewOutputSpec("qa_evaluation", schema.QASchema())
	if err != nil {
		return nil, fmt.Errorf("compile qa spec: %w", err)
	}
	return &Specs{Report: report, QA: qa}, nil
}

// Pipeline runs one analysis. Construct a fresh Pipeline per run; it
// is single-use and not safe to share.
type Pipeline struct {
	analysisID string
	model      string

	store     store.Store
	gateway   Gateway
	parser    *parse.Parser
	unpacker  *unpack.Unpacker
	publisher *events.Publisher
	thinking  *events.ThinkingRegistry
	specs     *Specs
	cfg       Config
	logger    *slog.Logger

	metrics models.Metrics

	// sleep is replaceable in tests to skip the streaming-retry pause.
	sleep func(time.Duration)
}

// Deps are the collaborators shared across runs.
type Deps struct {
	Store     store.Store
	Gateway   Gateway
	Parser    *parse.Parser
	Unpacker  *unpack.Unpacker
	Publisher *events.Publisher
	Thinking  *events.ThinkingRegistry
	Specs     *Specs
	Config    Config
	Logger    *slog.Logger
}

// New creates a pipeline for one analysis run.
func New(analysisID, model string, deps Deps) *Pipeline {
	return &Pipeline{
		analysisID: analysisID,
		model:      model,
		store:      deps.Store,
		gateway:    deps.Gateway,
		parser:     deps.Parser,
		unpacker:   deps.Unpacker,
		publisher:  deps.Publisher,
		thinking:   deps.Thinking,
		specs:      deps.Specs,
		cfg:        deps.Config,
		logger: deps.Logger.With(
			"analysis_id", analysisID,
			"model", model),
		metrics: models.Metrics{ModelUsed: model},
		sleep:   time.Sleep,
	}
}

// Run executes the full pipeline and writes exactly one terminal
// outcome: completed with a report, failed with an error, or nothing
// further when the run was canceled (the cancel writer already set the
// terminal status). The thinking queue is destroyed in every case.
func (p *Pipeline) Run(ctx context.Context, uploads []unpack.File) {
	p.thinking.Create(p.analysisID)
	defer p.thinking.Remove(p.analysisID)

	start := time.Now()
	err := p.run(ctx, start, uploads)
	if err == nil {
		return
	}

	if errors.Is(err, errCanceled) || errors.Is(err, context.Canceled) {
		p.logger.Info("Pipeline canceled")
		return
	}

	p.logger.Error("Pipeline failed", "error", err)
	p.metrics.ElapsedSeconds = time.Since(start).Seconds()

	failed := models.StatusFailed
	msg := err.Error()
	metrics := p.metrics
	if updateErr := p.store.UpdateAnalysis(ctx, p.analysisID, models.AnalysisUpdate{
		Status:  &failed,
		Error:   &msg,
		Metrics: &metrics,
	}); updateErr != nil {
		p.logger.Error("Failed to record pipeline failure", "error", updateErr)
	}
	if pubErr := p.publisher.Publish(ctx, p.analysisID, models.EventError, "", events.ErrorPayload{
		Message: msg,
	}); pubErr != nil {
		p.logger.Error("Failed to publish error event", "error", pubErr)
	}
}

func (p *Pipeline) run(ctx context.Context, start time.Time, uploads []unpack.File) error {
	// Stage 0: unpack archives into a flat file list.
	if err := p.checkCanceled(ctx); err != nil {
		return err
	}
	if err := p.setStatus(ctx, models.StatusUnpacking); err != nil {
		return err
	}
	files := p.unpacker.Expand(uploads)
	p.metrics.TotalFiles = len(files)

	if len(files) == 0 {
		names := make([]string, 0, len(uploads))
		for _, u := range uploads {
			names = append(names, u.Name)
		}
		return fmt.Errorf(
			"no supported files found in uploads %v; this may be caused by corrupt archives "+
				"or unsupported file formats (supported: PDF, DOCX, XLSX, PPTX, PNG, TIFF, JPG, ZIP)",
			names)
	}

	// Stage 1: parse every document.
	if err := p.checkCanceled(ctx); err != nil {
		return err
	}
	if err := p.setStatus(ctx, models.StatusParsing); err != nil {
		return err
	}
	docs := p.parseAll(ctx, files)
	for _, doc := range docs {
		p.metrics.TotalPages += doc.Pages
	}
	for _, doc := range docs {
		if err := p.store.AddDocument(ctx, &models.Document{
			AnalysisID: p.analysisID,
			Filename:   doc.Filename,
			Type:       doc.Type,
			Format:     doc.Format,
			Pages:      doc.Pages,
			SizeBytes:  doc.SizeBytes,
			Content:    doc.Content,
		}); err != nil {
			return fmt.Errorf("save document %s: %w", doc.Filename, err)
		}
	}

	// Stage 2: per-document structured extraction.
	if err := p.checkCanceled(ctx); err != nil {
		return err
	}
	if err := p.setStatus(ctx, models.StatusExtracting); err != nil {
		return err
	}
	extractions := p.extractAll(ctx, docs)
	p.pushThinkingDone()
	for _, ex := range extractions {
		p.metrics.ExtractionInputTokens += ex.usage.InputTokens
		p.metrics.ExtractionOutputTokens += ex.usage.OutputTokens
	}

	// Stage 3: aggregate the per-document facts into one report.
	if err := p.checkCanceled(ctx); err != nil {
		return err
	}
	if err := p.setStatus(ctx, models.StatusAggregating); err != nil {
		return err
	}
	if err := p.publisher.Publish(ctx, p.analysisID, models.EventAggregationStarted, "aggregation",
		events.StagePayload{DocumentCount: len(extractions)}); err != nil {
		return err
	}
	report, aggUsage, err := p.aggregate(ctx, extractions)
	p.pushThinkingDone()
	if err != nil {
		return fmt.Errorf("aggregation: %w", err)
	}
	p.metrics.AggregationInputTokens = aggUsage.InputTokens
	p.metrics.AggregationOutputTokens = aggUsage.OutputTokens
	if err := p.publisher.Publish(ctx, p.analysisID, models.EventAggregationCompleted, "aggregation", aggUsage); err != nil {
		return err
	}

	// Stage 4: QA completeness evaluation.
	if err := p.checkCanceled(ctx); err != nil {
		return err
	}
	if err := p.setStatus(ctx, models.StatusEvaluating); err != nil {
		return err
	}
	if err := p.publisher.Publish(ctx, p.analysisID, models.EventEvaluationStarted, "evaluation", nil); err != nil {
		return err
	}
	qa, evalUsage, err := p.evaluate(ctx, report, docs)
	p.pushThinkingDone()
	if err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	p.metrics.EvaluationInputTokens = evalUsage.InputTokens
	p.metrics.EvaluationOutputTokens = evalUsage.OutputTokens
	if err := p.publisher.Publish(ctx, p.analysisID, models.EventEvaluationCompleted, "evaluation", evalUsage); err != nil {
		return err
	}

	// Terminal write: close out the metrics and mark completed.
	p.metrics.ElapsedSeconds = time.Since(start).Seconds()
	p.metrics.EstimatedCostUSD = float64(p.metrics.TotalInputTokens())/1e6*costPerMInputUSD +
		float64(p.metrics.TotalOutputTokens())/1e6*costPerMOutputUSD

	completed := models.StatusCompleted
	metrics := p.metrics
	if err := p.store.UpdateAnalysis(ctx, p.analysisID, models.AnalysisUpdate{
		Status:  &completed,
		Report:  report,
		QA:      qa,
		Metrics: &metrics,
	}); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	if err := p.publisher.Publish(ctx, p.analysisID, models.EventMetricsUpdate, "", metrics); err != nil {
		return err
	}

	p.logger.Info("Pipeline completed",
		"files", p.metrics.TotalFiles,
		"pages", p.metrics.TotalPages,
		"elapsed_seconds", p.metrics.ElapsedSeconds,
		"estimated_cost_usd", p.metrics.EstimatedCostUSD)
	return nil
}

func (p *Pipeline) setStatus(ctx context.Context, status models.AnalysisStatus) error {
	p.logger.Info("Stage transition", "status", status)
	if err := p.store.UpdateAnalysis(ctx, p.analysisID, models.AnalysisUpdate{Status: &status}); err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}
	return nil
}

// checkCanceled re-reads the stored status between stages. A cancel
// request lands as status=canceled in the store; in-flight work is not
// interrupted but its result is discarded here.
func (p *Pipeline) checkCanceled(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	analysis, err := p.store.GetAnalysis(ctx, p.analysisID)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if analysis.Status == models.StatusCanceled {
		return errCanceled
	}
	return nil
}

func (p *Pipeline) pushThinking(phase, text string) {
	p.thinking.Push(p.analysisID, events.ThinkingChunk{Phase: phase, Content: text})
}

func (p *Pipeline) pushThinkingDone() {
	p.thinking.Push(p.analysisID, events.ThinkingChunk{Done: true})
}
