// Package vectorstore persists chunk embeddings in a named collection and
// answers nearest-neighbour queries against it. Scores are cosine distances
// for every backend: lower is closer.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/fabfab/pdf-rag/config"
	"github.com/fabfab/pdf-rag/database"
	"github.com/fabfab/pdf-rag/domain"
)

// Record is one chunk together with its embedding.
type Record struct {
	Chunk     domain.Chunk
	Embedding []float32
}

type Store interface {
	// Replace deletes any collection with the given name and writes records
	// into a fresh one.
	Replace(ctx context.Context, collection string, records []Record) error
	// Search returns at most k chunks ordered best-first.
	Search(ctx context.Context, collection string, embedding []float32, k int) ([]domain.ScoredChunk, error)
	Delete(ctx context.Context, collection string) error
	Close() error
}

// Open builds the backend selected by cfg.VectorStore.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.VectorStore {
	case config.VectorStorePGVector, "":
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, domain.WrapError(domain.ErrStorage, "open vector store", err)
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, domain.WrapError(domain.ErrStorage, "open vector store", err)
		}
		return NewPostgres(db), nil
	case config.VectorStoreChromem:
		return OpenChromem(cfg.ChromemPath)
	default:
		return nil, domain.WrapError(domain.ErrConfig, "open vector store", fmt.Errorf("unknown vector store %q", cfg.VectorStore))
	}
}

func collectionNotFound(op, collection string) error {
	return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, collection))
}
