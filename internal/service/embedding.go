package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// NoOpEmbedder is used when no embedding provider is configured. Every call
// fails with ErrEmbeddingUnavailable.
type NoOpEmbedder struct{}

func (NoOpEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, domain.Wrap(domain.ErrEmbeddingUnavailable, errors.New("embedding provider not configured: OPENAI_API_KEY required"))
}

func (NoOpEmbedder) Model() string   { return "none" }
func (NoOpEmbedder) Dimensions() int { return 0 }

// embedNormalized embeds texts and returns unit-length vectors. Any provider
// failure surfaces as ErrEmbeddingUnavailable.
func embedNormalized(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	if embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, domain.Wrap(domain.ErrEmbeddingUnavailable, err)
	}

	if len(vectors) != len(texts) {
		return nil, domain.Wrap(domain.ErrEmbeddingUnavailable,
			fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts)))
	}
	for i, v := range vectors {
		if len(v) == 0 || len(v) != len(vectors[0]) {
			return nil, domain.Wrap(domain.ErrEmbeddingUnavailable,
				fmt.Errorf("vector %d has %d dimensions", i, len(v)))
		}
	}

	return vectorindex.NormalizeAll(vectors), nil
}

// embedQuery embeds a single query text.
func embedQuery(ctx context.Context, embedder Embedder, query string) ([]float32, error) {
	vectors, err := embedNormalized(ctx, embedder, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
