// Package config loads environment settings and the curation configuration
// file, and builds the application logger.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported embedding and LLM providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds the settings read from the environment.
type Config struct {
	// Hosted assistant platform
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	// SurrealDB connection
	SurrealDBURL       string `env:"SURREALDB_URL" envDefault:"ws://localhost:8000/rpc"`
	SurrealDBNamespace string `env:"SURREALDB_NAMESPACE" envDefault:"biocuration"`
	SurrealDBDatabase  string `env:"SURREALDB_DATABASE" envDefault:"ontology"`
	SurrealDBUser      string `env:"SURREALDB_USER" envDefault:"root"`
	SurrealDBPass      string `env:"SURREALDB_PASS" envDefault:"root"`
	SurrealDBAuthLevel string `env:"SURREALDB_AUTH_LEVEL" envDefault:"root"`

	// Embedding
	EmbedProvider  string `env:"BIOCURATOR_EMBED_PROVIDER" envDefault:"ollama"`
	EmbedModel     string `env:"BIOCURATOR_EMBED_MODEL" envDefault:"all-minilm:l6-v2"`
	EmbedDimension int    `env:"BIOCURATOR_EMBED_DIMENSION" envDefault:"384"`
	OllamaHost     string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`

	// Term matcher
	LLMProvider     string `env:"BIOCURATOR_LLM_PROVIDER" envDefault:"openai"`
	LLMModel        string `env:"BIOCURATOR_LLM_MODEL" envDefault:"gpt-4o"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AWSRegion       string `env:"AWS_REGION" envDefault:"us-east-1"`

	// Logging
	LogFile      string     `env:"BIOCURATOR_LOG_FILE" envDefault:"/tmp/biocurator.log"`
	LogLevelName string     `env:"BIOCURATOR_LOG_LEVEL" envDefault:"INFO"`
	LogLevel     slog.Level `env:"-"`
}

// Load reads configuration from the environment. Variables from the given
// .env files (default ".env") are applied first; missing files are ignored
// and variables already set in the process environment win.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.EmbedDimension <= 0 {
		return Config{}, fmt.Errorf("BIOCURATOR_EMBED_DIMENSION must be positive, got %d", cfg.EmbedDimension)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
