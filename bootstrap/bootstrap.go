// Package bootstrap builds every component once from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fabfab/pdf-rag/chat"
	"github.com/fabfab/pdf-rag/config"
	"github.com/fabfab/pdf-rag/database"
	"github.com/fabfab/pdf-rag/domain"
	"github.com/fabfab/pdf-rag/ingestion"
	"github.com/fabfab/pdf-rag/knowledge"
	"github.com/fabfab/pdf-rag/provider"
	"github.com/fabfab/pdf-rag/retrieval"
	"github.com/fabfab/pdf-rag/vectorstore"
)

type App struct {
	Config config.Config

	Provider  provider.Provider
	Store     vectorstore.Store
	Graph     *knowledge.Graph
	Prompt    chat.Prompt
	Ingestor  *ingestion.Service
	Retriever *retrieval.Engine
	Chat      *chat.Service

	logger  zerolog.Logger
	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	prompt, err := chat.LoadPrompt(cfg.Language)
	if err != nil {
		return nil, err
	}

	p, err := provider.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init provider: %w", err)
	}

	store, err := vectorstore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	var graph *knowledge.Graph
	if cfg.GraphEnabled() {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init provenance graph: %w", domain.WrapError(domain.ErrStorage, "connect neo4j", err))
		}
		graph = knowledge.NewGraph(driver)
	}

	return assemble(cfg, p, store, graph, prompt, logger), nil
}

func assemble(cfg config.Config, p provider.Provider, store vectorstore.Store, graph *knowledge.Graph, prompt chat.Prompt, logger zerolog.Logger) *App {
	var sink ingestion.GraphSink
	if graph != nil {
		sink = graph
	}

	retriever := retrieval.NewEngine(store, p, cfg.CollectionName)

	return &App{
		Config:    cfg,
		Provider:  p,
		Store:     store,
		Graph:     graph,
		Prompt:    prompt,
		Ingestor:  ingestion.NewService(ingestion.PDFLoader{}, nil, p, store, sink, logger.With().Str("component", "ingestion").Logger()),
		Retriever: retriever,
		Chat:      chat.NewService(retriever, p, prompt, logger.With().Str("component", "chat").Logger()),
		logger:    logger,
		closeFn: func() {
			if graph != nil {
				_ = graph.Close(context.Background())
			}
			_ = store.Close()
		},
	}
}

// Clear deletes the configured collection and its provenance mirror.
func (a *App) Clear(ctx context.Context) error {
	if err := a.Store.Delete(ctx, a.Config.CollectionName); err != nil {
		return err
	}
	if a.Graph != nil {
		if err := a.Graph.Delete(ctx, a.Config.CollectionName); err != nil {
			return domain.WrapError(domain.ErrStorage, "clear provenance graph", err)
		}
	}
	a.logger.Info().Str("collection", a.Config.CollectionName).Msg("collection cleared")
	return nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
