package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fabfab/pdf-rag/domain"
	"github.com/fabfab/pdf-rag/knowledge"
	"github.com/fabfab/pdf-rag/provider"
	"github.com/fabfab/pdf-rag/vectorstore"
)

// Writer is the part of a vector store ingestion needs.
type Writer interface {
	Replace(ctx context.Context, collection string, records []vectorstore.Record) error
}

// GraphSink receives a provenance mirror of every successful ingestion.
type GraphSink interface {
	Sync(ctx context.Context, col knowledge.Collection) error
}

type Service struct {
	loader   PageLoader
	splitter *Splitter
	embedder provider.Embedder
	store    Writer
	graph    GraphSink
	logger   zerolog.Logger
}

// NewService wires the pipeline. graph may be nil; a nil splitter uses the
// default chunk size and overlap.
func NewService(loader PageLoader, splitter *Splitter, embedder provider.Embedder, store Writer, graph GraphSink, logger zerolog.Logger) *Service {
	if loader == nil {
		loader = PDFLoader{}
	}
	if splitter == nil {
		splitter = NewSplitter(defaultChunkSize, defaultChunkOverlap)
	}

	return &Service{
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		graph:    graph,
		logger:   logger,
	}
}

// Ingest loads sourcePath, splits and embeds it, and replaces collection with
// the result. Nothing is retried.
//
// The graph mirror is synced after the vector collection has been replaced.
// If that sync fails the new vectors are already live and searchable, yet
// Ingest still returns the ErrStorage error.
func (s *Service) Ingest(ctx context.Context, sourcePath, collection string) (domain.IngestionReport, error) {
	report := domain.IngestionReport{Source: sourcePath, Collection: collection}

	if s.embedder == nil {
		return report, domain.WrapError(domain.ErrConfig, "ingest", fmt.Errorf("embedder not configured"))
	}
	if s.store == nil {
		return report, domain.WrapError(domain.ErrConfig, "ingest", fmt.Errorf("vector store not configured"))
	}
	if strings.TrimSpace(collection) == "" {
		return report, domain.WrapError(domain.ErrInvalidInput, "ingest", fmt.Errorf("collection name is empty"))
	}

	log := s.logger.With().Str("source", sourcePath).Str("collection", collection).Logger()

	pages, err := s.loader.Load(ctx, sourcePath)
	if err != nil {
		return report, err
	}
	report.Pages = len(pages)
	log.Debug().Int("pages", len(pages)).Msg("source loaded")

	chunks, err := s.splitter.SplitPages(pages)
	if err != nil {
		return report, domain.WrapError(domain.ErrSourceLoad, "split pages", err)
	}
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
	}
	report.Chunks = len(chunks)
	if len(chunks) == 0 {
		log.Warn().Msg("source produced no text; collection will be empty")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	var vectors [][]float32
	if len(texts) > 0 {
		vectors, err = s.embedder.Embed(ctx, texts)
		if err != nil {
			return report, err
		}
		if len(vectors) != len(chunks) {
			return report, domain.WrapError(domain.ErrProvider, "embed chunks",
				fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(chunks), len(vectors)))
		}
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{Chunk: c, Embedding: vectors[i]}
	}

	if err := s.store.Replace(ctx, collection, records); err != nil {
		return report, err
	}

	if s.graph != nil {
		col := knowledge.BuildCollection(collection, sourcePath, pages, chunks)
		if err := s.graph.Sync(ctx, col); err != nil {
			return report, domain.WrapError(domain.ErrStorage, "sync provenance graph", err)
		}
	}

	log.Info().Int("pages", report.Pages).Int("chunks", report.Chunks).Msg("ingestion complete")
	return report, nil
}
