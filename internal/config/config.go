package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Embedding EmbeddingConfig
	Analyzer  AnalyzerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// EmbeddingConfig points at the text-embedding HTTP endpoint.
// Dimension must match the model's output size; every stored vector
// shares this dimensionality.
type EmbeddingConfig struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// AnalyzerConfig configures the LLM pattern analyzer.
type AnalyzerConfig struct {
	APIKey      string
	Model       string
	SampleLimit int
	Timeout     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: k.Strings("server.cors.origins"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   k.String("embedding.base.url"),
			Model:     k.String("embedding.model"),
			Dimension: k.Int("embedding.dimension"),
		},
		Analyzer: AnalyzerConfig{
			APIKey:      k.String("analyzer.api.key"),
			Model:       k.String("analyzer.model"),
			SampleLimit: k.Int("analyzer.sample.limit"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "recall"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "recall"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 768
	}
	if cfg.Analyzer.Model == "" {
		cfg.Analyzer.Model = "claude-3-5-haiku-latest"
	}
	if cfg.Analyzer.SampleLimit == 0 {
		cfg.Analyzer.SampleLimit = 50
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	embTimeoutStr := k.String("embedding.timeout")
	if embTimeoutStr == "" {
		embTimeoutStr = "30s"
	}
	cfg.Embedding.Timeout, err = time.ParseDuration(embTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing embedding timeout: %w", err)
	}

	anTimeoutStr := k.String("analyzer.timeout")
	if anTimeoutStr == "" {
		anTimeoutStr = "60s"
	}
	cfg.Analyzer.Timeout, err = time.ParseDuration(anTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing analyzer timeout: %w", err)
	}

	return cfg, nil
}
