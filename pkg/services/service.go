// Package services implements the application layer between the HTTP
// surface and the pipeline: upload validation, run launching, progress
// derivation, history, chat Q&A, and model catalog access.
package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tenderlens/tenderlens/pkg/config"
	"github.com/tenderlens/tenderlens/pkg/events"
	"github.com/tenderlens/tenderlens/pkg/export"
	"github.com/tenderlens/tenderlens/pkg/llm"
	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/parse"
	"github.com/tenderlens/tenderlens/pkg/pipeline"
	"github.com/tenderlens/tenderlens/pkg/store"
	"github.com/tenderlens/tenderlens/pkg/unpack"
)

// SettingOpenRouterKey is the store settings key holding an API key
// configured at runtime instead of through the environment.
const SettingOpenRouterKey = "openrouter_api_key"

var (
	// ErrInvalidInput marks upload validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotCompleted gates operations that need a finished report.
	ErrNotCompleted = errors.New("analysis not completed")
	// ErrNoAPIKey is returned when no LLM credential is configured.
	ErrNoAPIKey = errors.New("OpenRouter API key not configured")
)

// Gateway is the LLM surface the services need. *llm.Client satisfies
// it.
type Gateway interface {
	pipeline.Gateway
	StreamText(ctx context.Context, system string, history []llm.Message, model string, thinking llm.Thinking, onChunk func(string)) error
	ListModels(ctx context.Context) ([]models.ModelInfo, error)
	SearchModels(ctx context.Context, query string) ([]models.ModelInfo, error)
}

// GatewayFactory builds a gateway for a resolved API key. The key can
// come from the environment or from stored settings, so clients are
// constructed per use rather than once at boot.
type GatewayFactory func(apiKey, defaultModel string) Gateway

// Service is the application core shared by all HTTP handlers.
type Service struct {
	cfg        config.Config
	store      store.Store
	newGateway GatewayFactory
	parser     *parse.Parser
	unpacker   *unpack.Unpacker
	publisher  *events.Publisher
	thinking   *events.ThinkingRegistry
	specs      *pipeline.Specs
	exporter   export.Exporter // nil when no exporter service is configured
	logger     *slog.Logger

	// runSlots bounds concurrently running analyses.
	runSlots chan struct{}
}

// New creates the service layer. exporter may be nil to disable the
// export endpoint.
func New(cfg config.Config, st store.Store, factory GatewayFactory, converter parse.Converter, exporter export.Exporter, logger *slog.Logger) (*Service, error) {
	specs, err := pipeline.NewSpecs()
	if err != nil {
		return nil, err
	}

	slots := cfg.MaxConcurrentAnalyses
	if slots <= 0 {
		slots = 1
	}
	return &Service{
		cfg:        cfg,
		store:      st,
		newGateway: factory,
		parser:     parse.NewParser(converter, logger),
		unpacker:   unpack.New(logger),
		publisher:  events.NewPublisher(st, logger),
		thinking:   events.NewThinkingRegistry(),
		specs:      specs,
		exporter:   exporter,
		logger:     logger,
		runSlots:   make(chan struct{}, slots),
	}, nil
}

// Thinking exposes the ephemeral lane to the SSE handler.
func (s *Service) Thinking() *events.ThinkingRegistry { return s.thinking }

// resolveAPIKey prefers the environment key and falls back to stored
// settings.
func (s *Service) resolveAPIKey(ctx context.Context) (string, error) {
	if s.cfg.OpenRouterAPIKey != "" {
		return s.cfg.OpenRouterAPIKey, nil
	}
	key, err := s.store.GetSetting(ctx, SettingOpenRouterKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// ListModels returns the structured-output model catalog.
func (s *Service) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	apiKey, err := s.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	return s.newGateway(apiKey, s.cfg.DefaultModel).ListModels(ctx)
}

// SearchModels searches the full model catalog.
func (s *Service) SearchModels(ctx context.Context, query string) ([]models.ModelInfo, error) {
	apiKey, err := s.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	return s.newGateway(apiKey, s.cfg.DefaultModel).SearchModels(ctx, query)
}

// SetSetting stores a runtime setting (the API key, for example).
func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	return s.store.SetSetting(ctx, key, value)
}
