// Package events carries analysis progress to clients over two lanes:
// a durable lane persisted through the store (dense per-analysis
// indices, replayable from any index) and an ephemeral lane of
// thinking tokens that is never persisted.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/store"
)

// Publisher appends durable progress events to an analysis event log.
type Publisher struct {
	store  store.Store
	logger *slog.Logger
}

// NewPublisher creates a publisher writing through the given store.
func NewPublisher(st store.Store, logger *slog.Logger) *Publisher {
	return &Publisher{store: st, logger: logger}
}

// Publish appends one durable event. The store assigns the index.
func (p *Publisher) Publish(ctx context.Context, analysisID, eventType, stage string, payload any) error {
	data, err := toMap(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	event := &models.Event{
		AnalysisID: analysisID,
		Type:       eventType,
		Stage:      stage,
		Data:       data,
	}
	index, err := p.store.AppendEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	p.logger.Debug("Published event",
		"analysis_id", analysisID,
		"type", eventType,
		"index", index)
	return nil
}

func toMap(payload any) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}
	if m, ok := payload.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
