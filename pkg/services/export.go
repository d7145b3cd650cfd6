package services

import (
	"context"
	"errors"

	"github.com/tenderlens/tenderlens/pkg/export"
	"github.com/tenderlens/tenderlens/pkg/models"
)

// ErrExportUnavailable is returned when no exporter service is
// configured.
var ErrExportUnavailable = errors.New("export service not configured")

// Export renders the completed report to a downloadable document.
func (s *Service) Export(ctx context.Context, analysisID string, format export.Format) (export.Rendered, error) {
	if s.exporter == nil {
		return export.Rendered{}, ErrExportUnavailable
	}

	analysis, err := s.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return export.Rendered{}, err
	}
	if analysis.Status != models.StatusCompleted || analysis.Report == nil {
		return export.Rendered{}, ErrNotCompleted
	}
	return s.exporter.Render(ctx, analysisID, analysis.Report, analysis.QA, analysis.Model, format)
}
