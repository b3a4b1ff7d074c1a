// Package domain holds the value types shared by the ingestion and query
// paths, and the error kinds they report.
package domain

// DefaultSource is reported for chunks whose source metadata is missing.
const DefaultSource = "document.pdf"

// Page is the raw text of one physical page of a source document.
type Page struct {
	Source string
	Number int // 1-based
	Text   string
}

// Chunk is a bounded slice of a page's text prepared for embedding.
type Chunk struct {
	ID      string
	Content string
	Source  string
	Page    int
	Index   int
}

// ScoredChunk pairs a stored chunk with its cosine distance to the query.
// Lower scores are closer.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

type IngestionReport struct {
	Source     string
	Pages      int
	Chunks     int
	Collection string
}
