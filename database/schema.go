package database

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaStatements create the collection and embedding tables. The layout
// matches the one LangChain's PGVector store writes, so collections ingested
// by either side stay readable.
var SchemaStatements = []string{
	"CREATE EXTENSION IF NOT EXISTS vector",
	`CREATE TABLE IF NOT EXISTS langchain_pg_collection (
		uuid UUID PRIMARY KEY,
		name VARCHAR NOT NULL UNIQUE,
		cmetadata JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS langchain_pg_embedding (
		id VARCHAR PRIMARY KEY,
		collection_id UUID REFERENCES langchain_pg_collection(uuid) ON DELETE CASCADE,
		embedding VECTOR,
		document VARCHAR,
		cmetadata JSONB
	)`,
	"CREATE INDEX IF NOT EXISTS ix_cmetadata_gin ON langchain_pg_embedding USING gin (cmetadata jsonb_path_ops)",
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("postgres handle is nil")
	}

	for _, stmt := range SchemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
