// Package knowledge mirrors an ingested collection into Neo4j as
// (:Collection)-[:HAS_PAGE]->(:Page)-[:HAS_CHUNK]->(:Chunk).
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/pdf-rag/domain"
)

type Collection struct {
	Name   string
	Source string
	Pages  []Page
}

type Page struct {
	Number int
	Chunks []Chunk
}

type Chunk struct {
	ID    string
	Index int
	Text  string
}

// BuildCollection groups chunks by page in page order. Pages without chunks
// are still recorded.
func BuildCollection(name, source string, pages []domain.Page, chunks []domain.Chunk) Collection {
	byPage := make(map[int][]Chunk, len(pages))
	for _, c := range chunks {
		byPage[c.Page] = append(byPage[c.Page], Chunk{ID: c.ID, Index: c.Index, Text: c.Content})
	}

	col := Collection{Name: name, Source: source, Pages: make([]Page, 0, len(pages))}
	for _, p := range pages {
		col.Pages = append(col.Pages, Page{Number: p.Number, Chunks: byPage[p.Number]})
	}
	return col
}

// SyncCollection replaces any existing mirror of the collection.
func SyncCollection(ctx context.Context, driver neo4j.DriverWithContext, col Collection) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := deleteCollection(ctx, tx, col.Name); err != nil {
			return nil, err
		}

		if _, err := tx.Run(ctx, `
			CREATE (c:Collection {name: $name})
			SET c.source = $source,
			    c.updated_at = datetime()
		`, map[string]any{"name": col.Name, "source": col.Source}); err != nil {
			return nil, fmt.Errorf("create collection node: %w", err)
		}

		for _, page := range col.Pages {
			chunks := make([]map[string]any, 0, len(page.Chunks))
			for _, chunk := range page.Chunks {
				chunks = append(chunks, map[string]any{
					"id":    chunk.ID,
					"index": chunk.Index,
					"text":  chunk.Text,
				})
			}

			if _, err := tx.Run(ctx, `
				MATCH (c:Collection {name: $name})
				CREATE (c)-[:HAS_PAGE {number: $page}]->(p:Page {collection: $name, number: $page})
				WITH p
				UNWIND $chunks AS chunk
				CREATE (p)-[:HAS_CHUNK {order: chunk.index}]->(:Chunk {id: chunk.id, index: chunk.index, text: chunk.text})
			`, map[string]any{
				"name":   col.Name,
				"page":   page.Number,
				"chunks": chunks,
			}); err != nil {
				return nil, fmt.Errorf("create page %d: %w", page.Number, err)
			}
		}

		return nil, nil
	})
	return err
}

// DeleteCollection removes the collection node and everything below it.
func DeleteCollection(ctx context.Context, driver neo4j.DriverWithContext, name string) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, deleteCollection(ctx, tx, name)
	})
	return err
}

func deleteCollection(ctx context.Context, tx neo4j.ManagedTransaction, name string) error {
	if _, err := tx.Run(ctx, `
		MATCH (c:Collection {name: $name})
		OPTIONAL MATCH (c)-[:HAS_PAGE]->(p:Page)
		OPTIONAL MATCH (p)-[:HAS_CHUNK]->(ch:Chunk)
		DETACH DELETE ch, p, c
	`, map[string]any{"name": name}); err != nil {
		return fmt.Errorf("clear collection %s: %w", name, err)
	}
	return nil
}

// Graph binds the mirror operations to one driver.
type Graph struct {
	driver neo4j.DriverWithContext
}

func NewGraph(driver neo4j.DriverWithContext) *Graph {
	return &Graph{driver: driver}
}

func (g *Graph) Sync(ctx context.Context, col Collection) error {
	return SyncCollection(ctx, g.driver, col)
}

func (g *Graph) Delete(ctx context.Context, name string) error {
	return DeleteCollection(ctx, g.driver, name)
}

func (g *Graph) Close(ctx context.Context) error {
	if g.driver == nil {
		return nil
	}
	return g.driver.Close(ctx)
}
