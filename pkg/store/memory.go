package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tenderlens/tenderlens/pkg/models"
)

// MemoryStore keeps everything in process memory. It honors the same
// index-assignment and terminal-absorption rules as the PostgreSQL
// store, so the rest of the system cannot tell them apart.
type MemoryStore struct {
	mu       sync.RWMutex
	analyses map[string]*models.Analysis
	events   map[string][]*models.Event
	docs     map[string][]*models.Document
	chat     map[string][]*models.ChatMessage
	settings map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		analyses: make(map[string]*models.Analysis),
		events:   make(map[string][]*models.Event),
		docs:     make(map[string][]*models.Document),
		chat:     make(map[string][]*models.ChatMessage),
		settings: make(map[string]string),
	}
}

func (s *MemoryStore) CreateAnalysis(_ context.Context, analysis *models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if analysis.ID == "" {
		analysis.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	analysis.CreatedAt = now
	analysis.UpdatedAt = now
	clone := *analysis
	s.analyses[analysis.ID] = &clone
	return nil
}

func (s *MemoryStore) GetAnalysis(_ context.Context, id string) (*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	analysis, ok := s.analyses[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *analysis
	return &clone, nil
}

func (s *MemoryStore) UpdateAnalysis(_ context.Context, id string, update models.AnalysisUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	analysis, ok := s.analyses[id]
	if !ok {
		return ErrNotFound
	}
	if update.Status != nil {
		// Terminal statuses absorb: a late writer cannot move the
		// analysis out of completed/failed/canceled.
		if !analysis.Status.IsTerminal() {
			analysis.Status = *update.Status
		}
	}
	if update.Error != nil {
		analysis.Error = *update.Error
	}
	if update.Report != nil {
		analysis.Report = update.Report
	}
	if update.QA != nil {
		analysis.QA = update.QA
	}
	if update.Metrics != nil {
		analysis.Metrics = update.Metrics
	}
	analysis.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListAnalyses(_ context.Context, limit, offset int) ([]*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.Analysis, 0, len(s.analyses))
	for _, a := range s.analyses {
		clone := *a
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*models.Analysis{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) DeleteAnalysis(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.analyses[id]; !ok {
		return ErrNotFound
	}
	delete(s.analyses, id)
	delete(s.events, id)
	delete(s.docs, id)
	delete(s.chat, id)
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *models.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.analyses[event.AnalysisID]; !ok {
		return 0, ErrNotFound
	}
	event.Index = int64(len(s.events[event.AnalysisID]))
	event.CreatedAt = time.Now().UTC()
	clone := *event
	s.events[event.AnalysisID] = append(s.events[event.AnalysisID], &clone)
	return event.Index, nil
}

func (s *MemoryStore) GetEvents(_ context.Context, analysisID string, sinceIndex int64) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[analysisID]
	out := make([]*models.Event, 0)
	for _, ev := range all {
		if ev.Index >= sinceIndex {
			clone := *ev
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *MemoryStore) AddDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.analyses[doc.AnalysisID]; !ok {
		return ErrNotFound
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CreatedAt = time.Now().UTC()
	clone := *doc
	s.docs[doc.AnalysisID] = append(s.docs[doc.AnalysisID], &clone)
	return nil
}

func (s *MemoryStore) GetDocuments(_ context.Context, analysisID string) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Document, 0, len(s.docs[analysisID]))
	for _, doc := range s.docs[analysisID] {
		clone := *doc
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) AddChatMessage(_ context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.analyses[msg.AnalysisID]; !ok {
		return ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()
	clone := *msg
	s.chat[msg.AnalysisID] = append(s.chat[msg.AnalysisID], &clone)
	return nil
}

func (s *MemoryStore) GetChatMessages(_ context.Context, analysisID string) ([]*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ChatMessage, 0, len(s.chat[analysisID]))
	for _, msg := range s.chat[analysisID] {
		clone := *msg
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

func (s *MemoryStore) Close() error { return nil }
