// Package api exposes ingestion, search and grounded chat over HTTP.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fabfab/pdf-rag/chat"
	"github.com/fabfab/pdf-rag/config"
	"github.com/fabfab/pdf-rag/domain"
	"github.com/fabfab/pdf-rag/retrieval"
)

//go:embed openapi.yaml
var openAPISpecYAML []byte

type Ingestor interface {
	Ingest(ctx context.Context, sourcePath, collection string) (domain.IngestionReport, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)
}

type Asker interface {
	Ask(ctx context.Context, question string, k int) (chat.Response, error)
}

type Clearer interface {
	Clear(ctx context.Context) error
}

// Services are the operations the server fronts.
type Services struct {
	Ingestor Ingestor
	Searcher Searcher
	Chat     Asker
	Clearer  Clearer
}

// Server exposes HTTP handlers for the ingestion and question-answering
// workflows.
type Server struct {
	cfg      config.Config
	services Services
	metrics  *Metrics
	logger   zerolog.Logger
	handler  http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestRequest struct {
	Path string `json:"path"`
}

type ingestResponse struct {
	Source     string `json:"source"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	Collection string `json:"collection"`
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type searchResponse struct {
	Results []resultPayload `json:"results"`
}

type chatRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

type chatResponse struct {
	Answer  string          `json:"answer"`
	Sources []resultPayload `json:"sources"`
}

type resultPayload struct {
	Source  string  `json:"source"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

// New constructs a Server over the provided services.
func New(cfg config.Config, services Services, logger zerolog.Logger) *Server {
	s := &Server{cfg: cfg, services: services, metrics: NewMetrics(), logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.HandleFunc("/v1/clear", s.handleClear)
	mux.Handle("/metrics", s.metrics.Handler())
	return s.metrics.Middleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\"openapi.yaml\"")
	_, _ = w.Write(openAPISpecYAML)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	path := strings.TrimSpace(req.Path)
	if path == "" {
		path = s.cfg.PDFPath
	}

	s.logger.Info().Str("source", path).Str("collection", s.cfg.CollectionName).Msg("ingesting")
	report, err := s.services.Ingestor.Ingest(r.Context(), path, s.cfg.CollectionName)
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("ingestion failed: %w", err))
		return
	}
	s.metrics.RecordIngestion(report.Chunks)

	s.writeJSON(w, http.StatusOK, ingestResponse{
		Source:     report.Source,
		Pages:      report.Pages,
		Chunks:     report.Chunks,
		Collection: report.Collection,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}

	results, err := s.services.Searcher.Search(r.Context(), req.Query, s.topK(req.K))
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("search failed: %w", err))
		return
	}
	s.metrics.RecordRetrieval("search", len(results))

	s.writeJSON(w, http.StatusOK, searchResponse{Results: toPayload(results)})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	resp, err := s.services.Chat.Ask(r.Context(), req.Question, s.topK(req.K))
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("chat failed: %w", err))
		return
	}
	s.metrics.RecordRetrieval("chat", len(resp.Results))

	s.writeJSON(w, http.StatusOK, chatResponse{Answer: resp.Answer, Sources: toPayload(resp.Results)})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear data"))
		return
	}

	if err := s.services.Clearer.Clear(r.Context()); err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("clear failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "collection cleared"})
}

func (s *Server) topK(k int) int {
	switch {
	case k > 0:
		return min(k, retrieval.MaxK)
	case s.cfg.TopK > 0:
		return min(s.cfg.TopK, retrieval.MaxK)
	default:
		return retrieval.DefaultK
	}
}

// statusFor maps an error kind to the HTTP status reported to clients.
func statusFor(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSourceLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCollectionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrProvider):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn().Int("status", status).Err(err).Msg("api error")
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

func toPayload(results []domain.ScoredChunk) []resultPayload {
	out := make([]resultPayload, len(results))
	for i, r := range results {
		source := r.Chunk.Source
		if source == "" {
			source = domain.DefaultSource
		}
		out[i] = resultPayload{
			Source:  source,
			Page:    r.Chunk.Page,
			Score:   r.Score,
			Content: r.Chunk.Content,
		}
	}
	return out
}
