package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "recall",
			Password: "secret", Name: "recall", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		NATS:  NATSConfig{URL: "nats://localhost:4222"},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:11434", Model: "nomic-embed-text",
			Dimension: 768, Timeout: 30 * time.Second,
		},
		Analyzer: AnalyzerConfig{
			APIKey: "some-key", Model: "claude-3-5-haiku-latest",
			SampleLimit: 50, Timeout: 60 * time.Second,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_MissingDBPassword(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_BadServerPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Fatalf("expected SERVER_PORT error, got: %v", err)
	}
}

func TestValidate_ZeroEmbeddingDimension(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Dimension = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "EMBEDDING_DIMENSION") {
		t.Fatalf("expected EMBEDDING_DIMENSION error, got: %v", err)
	}
}

func TestValidate_EmptyAnalyzerKeyIsOnlyWarning(t *testing.T) {
	cfg := validConfig()
	cfg.Analyzer.APIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected empty analyzer key to pass validation, got: %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	cfg.Redis.Port = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "DB_PASSWORD") || !strings.Contains(err.Error(), "REDIS_PORT") {
		t.Fatalf("expected both errors reported, got: %v", err)
	}
}
