package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Embedding dimension must be positive; stored vectors all share it
	if c.Embedding.Dimension < 1 {
		errs = append(errs, fmt.Sprintf("EMBEDDING_DIMENSION must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.Timeout <= 0 {
		errs = append(errs, "EMBEDDING_TIMEOUT must be positive")
	}

	if c.Analyzer.SampleLimit < 1 {
		errs = append(errs, fmt.Sprintf("ANALYZER_SAMPLE_LIMIT must be positive, got %d", c.Analyzer.SampleLimit))
	}

	// Analyzer key: warn only — insights degrade, writes still work
	if c.Analyzer.APIKey == "" {
		slog.Warn("ANALYZER_API_KEY is empty — pattern analysis is disabled")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
