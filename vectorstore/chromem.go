package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/fabfab/pdf-rag/domain"
)

// Chromem keeps collections in an embedded chromem-go database. Replace is
// delete-then-insert without rollback.
type Chromem struct {
	db *chromem.DB
}

func NewChromem(db *chromem.DB) *Chromem {
	return &Chromem{db: db}
}

// OpenChromem opens a persistent database rooted at path, or an in-memory
// one when path is empty.
func OpenChromem(path string) (*Chromem, error) {
	if path == "" {
		return NewChromem(chromem.NewDB()), nil
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "open chromem", err)
	}
	return NewChromem(db), nil
}

func (c *Chromem) Replace(ctx context.Context, collection string, records []Record) error {
	const op = "replace collection"

	if err := c.db.DeleteCollection(collection); err != nil {
		return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("delete existing collection: %w", err))
	}

	col, err := c.db.CreateCollection(collection, nil, nil)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("create collection: %w", err))
	}
	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, record := range records {
		id := record.Chunk.ID
		if id == "" {
			id = uuid.NewString()
		}
		docs = append(docs, chromem.Document{
			ID:      id,
			Content: record.Chunk.Content,
			Metadata: map[string]string{
				"source":      record.Chunk.Source,
				"page":        strconv.Itoa(record.Chunk.Page),
				"chunk_index": strconv.Itoa(record.Chunk.Index),
			},
			Embedding: record.Embedding,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("add documents: %w", err))
	}
	return nil
}

func (c *Chromem) Search(ctx context.Context, collection string, embedding []float32, k int) ([]domain.ScoredChunk, error) {
	const op = "search collection"

	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("k must be positive, got %d", k))
	}

	col := c.db.GetCollection(collection, nil)
	if col == nil {
		return nil, collectionNotFound(op, collection)
	}

	// chromem rejects n greater than the collection size.
	n := min(k, col.Count())
	if n == 0 {
		return []domain.ScoredChunk{}, nil
	}

	found, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, op, err)
	}

	results := make([]domain.ScoredChunk, 0, len(found))
	for _, r := range found {
		page, _ := strconv.Atoi(r.Metadata["page"])
		index, _ := strconv.Atoi(r.Metadata["chunk_index"])
		results = append(results, domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:      r.ID,
				Content: r.Content,
				Source:  r.Metadata["source"],
				Page:    page,
				Index:   index,
			},
			Score: 1 - float64(r.Similarity),
		})
	}
	return results, nil
}

func (c *Chromem) Delete(_ context.Context, collection string) error {
	if err := c.db.DeleteCollection(collection); err != nil {
		return domain.WrapError(domain.ErrStorage, "delete collection", err)
	}
	return nil
}

func (c *Chromem) Close() error {
	return nil
}
