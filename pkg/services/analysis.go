package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/pipeline"
	"github.com/tenderlens/tenderlens/pkg/store"
	"github.com/tenderlens/tenderlens/pkg/unpack"
)

// noAPIKeyMessage is shown to users both as a request error and as the
// failure reason of runs launched without a configured key.
const noAPIKeyMessage = "OpenRouter API key not configured. Set it in Settings."

// allowedExtensions lists the upload types the converter understands,
// plus zip archives which are expanded before parsing.
var allowedExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".xlsx": true, ".pptx": true,
	".png": true, ".tiff": true, ".jpg": true, ".jpeg": true,
	".zip": true,
}

// Upload is one file received from the client.
type Upload struct {
	Filename string
	Data     []byte
}

// Detail is the full client-facing view of an analysis: the stored
// record plus derived progress and the attached document listing.
type Detail struct {
	*models.Analysis
	Progress        int                `json:"progress"`
	CurrentStep     string             `json:"current_step"`
	SourceDocuments []*models.Document `json:"source_documents"`
}

// Create validates the uploads, records a pending analysis, and starts
// the pipeline in the background. It returns before any processing
// happens.
func (s *Service) Create(ctx context.Context, uploads []Upload, model string) (*Detail, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", ErrInvalidInput)
	}
	if len(uploads) > s.cfg.MaxFiles {
		return nil, fmt.Errorf("%w: too many files (max %d)", ErrInvalidInput, s.cfg.MaxFiles)
	}
	maxBytes := int64(s.cfg.MaxFileSizeMB) << 20
	for _, u := range uploads {
		ext := strings.ToLower(path.Ext(u.Filename))
		if !allowedExtensions[ext] {
			return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidInput, u.Filename)
		}
		if int64(len(u.Data)) > maxBytes {
			return nil, fmt.Errorf("%w: file %q exceeds %d MB",
				ErrInvalidInput, u.Filename, s.cfg.MaxFileSizeMB)
		}
	}

	if model == "" {
		model = s.cfg.DefaultModel
	}

	analysis := &models.Analysis{
		ID:     uuid.NewString(),
		Status: models.StatusPending,
		Model:  model,
	}
	if err := s.store.CreateAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("create analysis: %w", err)
	}

	files := make([]unpack.File, len(uploads))
	for i, u := range uploads {
		files[i] = unpack.File{Name: u.Filename, Data: u.Data}
	}
	go s.runPipeline(analysis.ID, model, files)

	s.logger.Info("Analysis created",
		"analysis_id", analysis.ID, "model", model, "files", len(files))
	return &Detail{Analysis: analysis, CurrentStep: stepLabel(analysis.Status)}, nil
}

// runPipeline executes one analysis in the background. It deliberately
// uses a fresh context: the upload request finishing must not cancel
// the run.
func (s *Service) runPipeline(analysisID, model string, files []unpack.File) {
	s.runSlots <- struct{}{}
	defer func() { <-s.runSlots }()

	ctx := context.Background()

	apiKey, err := s.resolveAPIKey(ctx)
	if err != nil {
		s.failBeforeRun(ctx, analysisID, err)
		return
	}

	p := pipeline.New(analysisID, model, pipeline.Deps{
		Store:     s.store,
		Gateway:   s.newGateway(apiKey, model),
		Parser:    s.parser,
		Unpacker:  s.unpacker,
		Publisher: s.publisher,
		Thinking:  s.thinking,
		Specs:     s.specs,
		Config:    s.pipelineConfig(),
		Logger:    s.logger,
	})
	p.Run(ctx, files)
}

func (s *Service) pipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	if s.cfg.ParseMaxConcurrent > 0 {
		cfg.ParseConcurrency = s.cfg.ParseMaxConcurrent
	}
	if s.cfg.ExtractMaxConcurrent > 0 {
		cfg.ExtractConcurrency = s.cfg.ExtractMaxConcurrent
	}
	return cfg
}

// failBeforeRun marks an analysis failed without entering the pipeline,
// keeping the one-terminal-write rule: the pipeline never started, so
// this is the only writer.
func (s *Service) failBeforeRun(ctx context.Context, analysisID string, cause error) {
	msg := cause.Error()
	if errors.Is(cause, ErrNoAPIKey) {
		msg = noAPIKeyMessage
	}
	s.logger.Error("Analysis failed before start",
		"analysis_id", analysisID, "error", cause)

	status := models.StatusFailed
	if err := s.store.UpdateAnalysis(ctx, analysisID, models.AnalysisUpdate{
		Status: &status,
		Error:  &msg,
	}); err != nil {
		s.logger.Error("Failed to record startup failure",
			"analysis_id", analysisID, "error", err)
	}
	_ = s.publisher.Publish(ctx, analysisID, models.EventError, "startup",
		map[string]any{"stage": "startup", "message": msg})
}

// Get returns the full detail view for one analysis.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	analysis, err := s.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.GetDocuments(ctx, id)
	if err != nil {
		return nil, err
	}
	progress, err := s.progress(ctx, analysis)
	if err != nil {
		return nil, err
	}
	return &Detail{
		Analysis:        analysis,
		Progress:        progress,
		CurrentStep:     stepLabel(analysis.Status),
		SourceDocuments: docs,
	}, nil
}

// List returns compact summaries, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.AnalysisSummary, error) {
	analyses, err := s.store.ListAnalyses(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	summaries := make([]*models.AnalysisSummary, 0, len(analyses))
	for _, a := range analyses {
		summary := &models.AnalysisSummary{
			ID:        a.ID,
			Status:    a.Status,
			CreatedAt: a.CreatedAt,
		}
		if a.Metrics != nil {
			summary.FileCount = a.Metrics.TotalFiles
		}
		if a.Report != nil {
			summary.ProjectSummary = a.Report.ProjectSummary
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Cancel requests cancellation of a running analysis. Terminal analyses
// are left untouched; the pipeline notices the status flip between
// stages and stops without writing a second terminal state.
func (s *Service) Cancel(ctx context.Context, id string) error {
	analysis, err := s.store.GetAnalysis(ctx, id)
	if err != nil {
		return err
	}
	if analysis.Status.IsTerminal() {
		return nil
	}

	status := models.StatusCanceled
	if err := s.store.UpdateAnalysis(ctx, id, models.AnalysisUpdate{Status: &status}); err != nil {
		return fmt.Errorf("cancel analysis: %w", err)
	}
	s.logger.Info("Analysis canceled", "analysis_id", id)
	return nil
}

// Delete removes the analysis and all attached records.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetAnalysis(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteAnalysis(ctx, id)
}

// DocumentContent returns one parsed document of an analysis by
// filename.
func (s *Service) DocumentContent(ctx context.Context, analysisID, filename string) (*models.Document, error) {
	if _, err := s.store.GetAnalysis(ctx, analysisID); err != nil {
		return nil, err
	}
	docs, err := s.store.GetDocuments(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.Filename == filename {
			return doc, nil
		}
	}
	return nil, store.ErrNotFound
}

// Events returns durable events with index >= sinceIndex.
func (s *Service) Events(ctx context.Context, analysisID string, sinceIndex int64) ([]*models.Event, error) {
	return s.store.GetEvents(ctx, analysisID, sinceIndex)
}

// progress maps the status to a coarse percentage. The extracting band
// spans 40-70 and moves with the share of finished documents.
func (s *Service) progress(ctx context.Context, analysis *models.Analysis) (int, error) {
	switch analysis.Status {
	case models.StatusPending:
		return 0, nil
	case models.StatusUnpacking:
		return 5, nil
	case models.StatusParsing:
		return 15, nil
	case models.StatusExtracting:
		done, total, err := s.extractionCounts(ctx, analysis.ID)
		if err != nil {
			return 0, err
		}
		if total == 0 {
			return 40, nil
		}
		return 40 + int(float64(done)/float64(total)*100*0.30), nil
	case models.StatusAggregating:
		return 70, nil
	case models.StatusEvaluating:
		return 85, nil
	case models.StatusCompleted:
		return 100, nil
	default:
		return 0, nil
	}
}

func (s *Service) extractionCounts(ctx context.Context, analysisID string) (done, total int, err error) {
	evts, err := s.store.GetEvents(ctx, analysisID, 0)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range evts {
		switch e.Type {
		case models.EventExtractionCompleted:
			done++
		case models.EventExtractionStarted:
			if t, ok := e.Data["total"].(float64); ok && int(t) > total {
				total = int(t)
			}
		}
	}
	return done, total, nil
}

// stepLabel returns the user-facing Lithuanian label for a status.
func stepLabel(status models.AnalysisStatus) string {
	switch status {
	case models.StatusPending:
		return "Laukiama..."
	case models.StatusUnpacking:
		return "Išpakuojami ZIP failai..."
	case models.StatusParsing:
		return "Analizuojami dokumentai..."
	case models.StatusExtracting:
		return "Ištraukiama informacija..."
	case models.StatusAggregating:
		return "Sujungiami rezultatai..."
	case models.StatusEvaluating:
		return "Vertinama kokybė..."
	case models.StatusCompleted:
		return "Analizė užbaigta"
	case models.StatusFailed:
		return "Klaida"
	case models.StatusCanceled:
		return "Atšaukta"
	default:
		return string(status)
	}
}
