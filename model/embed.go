package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"knowledge/config"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder turns text into a fixed length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// NewEmbedder builds the embedding client for the configured provider. Vectors
// whose length differs from EmbeddingDimensions are rejected.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	var (
		base Embedder
		err  error
	)
	switch cfg.EmbeddingProvider {
	case "ollama":
		base = NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, &http.Client{Timeout: 30 * time.Second})
	case "openai":
		base, err = NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	default:
		err = fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("embedder_ready",
		slog.String("provider", cfg.EmbeddingProvider),
		slog.String("model", cfg.EmbeddingModel),
		slog.Int("dimensions", cfg.EmbeddingDimensions))

	if cfg.EmbeddingRateLimit > 0 {
		base = NewRateLimitedEmbedder(base, cfg.EmbeddingRateLimit, 1)
	}
	return NewDimensionGuard(base, cfg.EmbeddingDimensions), nil
}

type DimensionGuard struct {
	next       Embedder
	dimensions int
}

func NewDimensionGuard(next Embedder, dimensions int) *DimensionGuard {
	return &DimensionGuard{next: next, dimensions: dimensions}
}

func (g *DimensionGuard) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := CheckDimensions(vec, g.dimensions); err != nil {
		return nil, fmt.Errorf("%s: %w", g.next.ModelName(), err)
	}
	return vec, nil
}

func (g *DimensionGuard) ModelName() string {
	return g.next.ModelName()
}

func (g *DimensionGuard) Dimensions() int {
	return g.dimensions
}

func CheckDimensions(vec []float32, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
