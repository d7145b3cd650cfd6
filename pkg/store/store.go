// Package store persists analyses, documents, events, chat history, and
// settings. Two implementations exist: a PostgreSQL store for
// deployments and an in-memory store for development and tests.
package store

import (
	"context"
	"errors"

	"github.com/tenderlens/tenderlens/pkg/models"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary for the whole service.
//
// AppendEvent assigns the event's index atomically: indices are dense,
// monotonically increasing, and start at 0 for each analysis. Status
// writes respect terminal absorption: once an analysis has reached a
// terminal status, UpdateAnalysis silently drops further status changes.
type Store interface {
	CreateAnalysis(ctx context.Context, analysis *models.Analysis) error
	GetAnalysis(ctx context.Context, id string) (*models.Analysis, error)
	UpdateAnalysis(ctx context.Context, id string, update models.AnalysisUpdate) error
	ListAnalyses(ctx context.Context, limit, offset int) ([]*models.Analysis, error)
	// DeleteAnalysis removes the analysis and everything attached to it:
	// documents, events, and chat history.
	DeleteAnalysis(ctx context.Context, id string) error

	AppendEvent(ctx context.Context, event *models.Event) (int64, error)
	// GetEvents returns events with index >= sinceIndex, in index order.
	GetEvents(ctx context.Context, analysisID string, sinceIndex int64) ([]*models.Event, error)

	AddDocument(ctx context.Context, doc *models.Document) error
	GetDocuments(ctx context.Context, analysisID string) ([]*models.Document, error)

	AddChatMessage(ctx context.Context, msg *models.ChatMessage) error
	GetChatMessages(ctx context.Context, analysisID string) ([]*models.ChatMessage, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
