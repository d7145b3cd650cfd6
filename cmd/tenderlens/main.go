// TenderLens server — analyzes Lithuanian procurement document sets
// with an LLM pipeline and serves the analysis API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tenderlens/tenderlens/pkg/api"
	"github.com/tenderlens/tenderlens/pkg/config"
	"github.com/tenderlens/tenderlens/pkg/export"
	"github.com/tenderlens/tenderlens/pkg/llm"
	"github.com/tenderlens/tenderlens/pkg/parse"
	"github.com/tenderlens/tenderlens/pkg/services"
	"github.com/tenderlens/tenderlens/pkg/store"
	"github.com/tenderlens/tenderlens/pkg/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Error closing store", "error", err)
		}
	}()

	if cfg.ConverterURL == "" {
		logger.Error("CONVERTER_URL is required")
		os.Exit(1)
	}
	converter := parse.NewHTTPConverter(cfg.ConverterURL, cfg.ConverterTimeout)

	var exporter export.Exporter
	if cfg.ExporterURL != "" {
		exporter = export.NewHTTPExporter(cfg.ExporterURL, cfg.ConverterTimeout)
		logger.Info("Exporter enabled", "url", cfg.ExporterURL)
	}

	factory := func(apiKey, defaultModel string) services.Gateway {
		return llm.NewClient(cfg.OpenRouterBaseURL, apiKey, defaultModel, logger)
	}

	svc, err := services.New(cfg, st, factory, converter, exporter, logger)
	if err != nil {
		logger.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(svc, cfg, logger)
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("TenderLens started",
		"version", version.Full(),
		"default_model", cfg.DefaultModel,
		"max_concurrent_analyses", cfg.MaxConcurrentAnalyses)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("TenderLens stopped")
}

// openStore selects postgres when STORE_URL is set, falling back to the
// in-memory store for local development.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreURL == "" {
		logger.Info("Using in-memory store")
		return store.NewMemoryStore(), nil
	}
	logger.Info("Connecting to PostgreSQL store")
	return store.NewPostgresStore(ctx, cfg.StoreURL)
}
