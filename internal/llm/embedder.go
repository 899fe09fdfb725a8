// Package llm provides LLM and embedding services using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/biocurator-go/internal/config"
)

// Embedder produces fixed-dimension vectors for ontology terms and resolve
// queries. Every vector it returns has exactly Dimension() components.
type Embedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
}

// NewEmbedder creates the embedder selected by BIOCURATOR_EMBED_PROVIDER.
func NewEmbedder(cfg config.Config) (*Embedder, error) {
	client, err := newEmbeddingClient(cfg)
	if err != nil {
		return nil, err
	}
	model, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.EmbedProvider, err)
	}
	return NewEmbedderFrom(model, cfg.EmbedModel, cfg.EmbedDimension), nil
}

func newEmbeddingClient(cfg config.Config) (embeddings.EmbedderClient, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		client, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for openai embeddings")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	}
	return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
}

// NewEmbedderFrom wraps an existing langchaingo embedder.
func NewEmbedderFrom(model embeddings.Embedder, modelName string, dimension int) *Embedder {
	return &Embedder{model: model, dimension: dimension, modelName: modelName}
}

// Embed returns the query vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := e.model.EmbedQuery(ctx, text)
	if err != nil {
		slog.Warn("query embedding failed", "model", e.modelName, "text_len", len(text), "error", err)
		return nil, fmt.Errorf("embed query: %w", wrapFatalError(err))
	}
	if err := e.checkDimension(vector); err != nil {
		return nil, err
	}
	slog.Debug("query embedded", "model", e.modelName, "text_len", len(text), "duration_ms", time.Since(start).Milliseconds())
	return vector, nil
}

// EmbedBatch returns one vector per text, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		slog.Warn("batch embedding failed", "model", e.modelName, "texts", len(texts), "error", err)
		return nil, fmt.Errorf("embed batch: %w", wrapFatalError(err))
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if err := e.checkDimension(v); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	slog.Debug("batch embedded", "model", e.modelName, "texts", len(texts), "duration_ms", time.Since(start).Milliseconds())
	return vectors, nil
}

func (e *Embedder) checkDimension(v []float32) error {
	if len(v) != e.dimension {
		return fmt.Errorf("dimension mismatch: got %d, want %d", len(v), e.dimension)
	}
	return nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}
