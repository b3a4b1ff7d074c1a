package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/pdf-rag/domain"
)

const (
	deleteCollectionSQL = `DELETE FROM langchain_pg_collection WHERE name = $1`
	insertCollectionSQL = `INSERT INTO langchain_pg_collection (uuid, name, cmetadata) VALUES ($1, $2, $3)`
	insertEmbeddingSQL  = `INSERT INTO langchain_pg_embedding (id, collection_id, embedding, document, cmetadata) VALUES ($1, $2, $3, $4, $5)`
	selectCollectionSQL = `SELECT uuid FROM langchain_pg_collection WHERE name = $1`
	searchSQL           = `SELECT e.id, e.document, e.cmetadata, e.embedding <=> $1 AS distance
		FROM langchain_pg_embedding e
		WHERE e.collection_id = $2
		ORDER BY distance
		LIMIT $3`
)

// k is caller-controlled; the result slice grows past this on demand.
const searchPrealloc = 64

// Postgres stores collections in the pgvector tables created by
// database.EnsureSchema.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type chunkMetadata struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Index  *int   `json:"chunk_index,omitempty"`
}

func (p *Postgres) Replace(ctx context.Context, collection string, records []Record) (err error) {
	const op = "replace collection"

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, deleteCollectionSQL, collection); err != nil {
		return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("delete existing collection: %w", err))
	}

	collectionID := uuid.New()
	if _, err = tx.ExecContext(ctx, insertCollectionSQL, collectionID, collection, "{}"); err != nil {
		return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("insert collection: %w", err))
	}

	for i, record := range records {
		id := record.Chunk.ID
		if id == "" {
			id = uuid.NewString()
		}
		index := record.Chunk.Index
		meta, marshalErr := json.Marshal(chunkMetadata{Source: record.Chunk.Source, Page: record.Chunk.Page, Index: &index})
		if marshalErr != nil {
			err = marshalErr
			return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("encode metadata for chunk %d: %w", i, err))
		}

		if _, err = tx.ExecContext(ctx, insertEmbeddingSQL,
			id, collectionID, pgvector.NewVector(record.Embedding), record.Chunk.Content, string(meta),
		); err != nil {
			return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("insert chunk %d: %w", i, err))
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrStorage, op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (p *Postgres) Search(ctx context.Context, collection string, embedding []float32, k int) ([]domain.ScoredChunk, error) {
	const op = "search collection"

	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("k must be positive, got %d", k))
	}

	var collectionID uuid.UUID
	if err := p.db.QueryRowContext(ctx, selectCollectionSQL, collection).Scan(&collectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, collectionNotFound(op, collection)
		}
		return nil, domain.WrapError(domain.ErrStorage, op, err)
	}

	rows, err := p.db.QueryContext(ctx, searchSQL, pgvector.NewVector(embedding), collectionID, k)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, op, err)
	}
	defer rows.Close()

	results := make([]domain.ScoredChunk, 0, min(k, searchPrealloc))
	for rows.Next() {
		var (
			id       string
			document sql.NullString
			rawMeta  []byte
			distance float64
		)
		if err := rows.Scan(&id, &document, &rawMeta, &distance); err != nil {
			return nil, domain.WrapError(domain.ErrStorage, op, fmt.Errorf("scan row: %w", err))
		}

		chunk := domain.Chunk{ID: id, Content: document.String}
		applyMetadata(&chunk, rawMeta)
		results = append(results, domain.ScoredChunk{Chunk: chunk, Score: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStorage, op, err)
	}

	return results, nil
}

func (p *Postgres) Delete(ctx context.Context, collection string) error {
	if _, err := p.db.ExecContext(ctx, deleteCollectionSQL, collection); err != nil {
		return domain.WrapError(domain.ErrStorage, "delete collection", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// applyMetadata tolerates rows written by other tools: page may be stored as
// a number or a string, and any field may be missing.
func applyMetadata(chunk *domain.Chunk, raw []byte) {
	if len(raw) == 0 {
		return
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return
	}
	if source, ok := meta["source"].(string); ok {
		chunk.Source = source
	}
	chunk.Page = intValue(meta["page"])
	chunk.Index = intValue(meta["chunk_index"])
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
