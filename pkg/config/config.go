// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the service.
type Config struct {
	// OpenRouterAPIKey authorizes gateway requests. May be empty at boot
	// when a key is provided through stored settings instead.
	OpenRouterAPIKey string
	// OpenRouterBaseURL is the OpenAI-compatible API root.
	OpenRouterBaseURL string

	// StoreURL is a postgres DSN; empty selects the in-memory store.
	StoreURL string

	DefaultModel string

	MaxFileSizeMB         int
	MaxFiles              int
	MaxConcurrentAnalyses int
	ParseMaxConcurrent    int
	ExtractMaxConcurrent  int

	ConverterURL     string
	ConverterTimeout time.Duration

	// ExporterURL points at the report rendering service; empty
	// disables the export endpoint.
	ExporterURL string

	HTTPPort       int
	AllowedOrigins string
	TempDir        string
}

// LoadFromEnv reads configuration from environment variables, applying
// defaults for everything optional.
func LoadFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("HTTP_PORT", "8080"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid HTTP_PORT: %w", err)
	}

	maxFileSize, err := strconv.Atoi(getEnvOrDefault("MAX_FILE_SIZE_MB", "50"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid MAX_FILE_SIZE_MB: %w", err)
	}

	maxFiles, _ := strconv.Atoi(getEnvOrDefault("MAX_FILES", "20"))
	maxAnalyses, _ := strconv.Atoi(getEnvOrDefault("MAX_CONCURRENT_ANALYSES", "5"))
	parseConc, _ := strconv.Atoi(getEnvOrDefault("PARSE_MAX_CONCURRENT", "5"))
	extractConc, _ := strconv.Atoi(getEnvOrDefault("EXTRACT_MAX_CONCURRENT", "5"))
	convTimeout, _ := strconv.Atoi(getEnvOrDefault("CONVERTER_TIMEOUT_SECONDS", "120"))

	return Config{
		OpenRouterAPIKey:      os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL:     getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		StoreURL:              os.Getenv("STORE_URL"),
		DefaultModel:          getEnvOrDefault("DEFAULT_MODEL", "anthropic/claude-sonnet-4"),
		MaxFileSizeMB:         maxFileSize,
		MaxFiles:              maxFiles,
		MaxConcurrentAnalyses: maxAnalyses,
		ParseMaxConcurrent:    parseConc,
		ExtractMaxConcurrent:  extractConc,
		ConverterURL:          os.Getenv("CONVERTER_URL"),
		ConverterTimeout:      time.Duration(convTimeout) * time.Second,
		ExporterURL:           os.Getenv("EXPORTER_URL"),
		HTTPPort:              port,
		AllowedOrigins:        getEnvOrDefault("ALLOWED_ORIGINS", "*"),
		TempDir:               getEnvOrDefault("TEMP_DIR", os.TempDir()),
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
