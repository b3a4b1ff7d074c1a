// Package retrieval embeds a question and looks up the closest chunks in the
// configured collection.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabfab/pdf-rag/domain"
	"github.com/fabfab/pdf-rag/provider"
)

const (
	// DefaultK is the number of chunks retrieved per question.
	DefaultK = 10
	// MaxK bounds a single lookup; larger requests are clamped.
	MaxK = 100
)

type Searcher interface {
	Search(ctx context.Context, collection string, embedding []float32, k int) ([]domain.ScoredChunk, error)
}

type Engine struct {
	store      Searcher
	embedder   provider.Embedder
	collection string
}

func NewEngine(store Searcher, embedder provider.Embedder, collection string) *Engine {
	return &Engine{store: store, embedder: embedder, collection: collection}
}

func (e *Engine) Collection() string {
	return e.collection
}

// Search returns at most min(k, MaxK) chunks, best-first. The score is a
// cosine distance; lower is closer.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("k must be positive, got %d", k))
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is empty"))
	}
	k = min(k, MaxK)

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, domain.WrapError(domain.ErrProvider, "embed query", fmt.Errorf("expected 1 embedding, got %d", len(vectors)))
	}

	results, err := e.store.Search(ctx, e.collection, vectors[0], k)
	if err != nil {
		return nil, err
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
