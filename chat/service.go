package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fabfab/pdf-rag/domain"
	"github.com/fabfab/pdf-rag/provider"
	"github.com/fabfab/pdf-rag/retrieval"
)

type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)
}

type Response struct {
	Answer  string
	Prompt  string
	Results []domain.ScoredChunk
}

type Service struct {
	retriever Retriever
	model     provider.ChatModel
	prompt    Prompt
	logger    zerolog.Logger
}

func NewService(retriever Retriever, model provider.ChatModel, prompt Prompt, logger zerolog.Logger) *Service {
	if prompt.Template == "" {
		prompt = defaultPrompt
	}

	return &Service{
		retriever: retriever,
		model:     model,
		prompt:    prompt,
		logger:    logger,
	}
}

// Answer returns the model's raw reply for question.
func (s *Service) Answer(ctx context.Context, question string, k int) (string, error) {
	resp, err := s.Ask(ctx, question, k)
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// Ask retrieves up to k chunks (10 when k <= 0), grounds the prompt on them
// and returns the model's reply unmodified.
func (s *Service) Ask(ctx context.Context, question string, k int) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question cannot be empty"))
	}
	if s.retriever == nil {
		return Response{}, domain.WrapError(domain.ErrConfig, "ask", fmt.Errorf("retriever is not configured"))
	}
	if s.model == nil {
		return Response{}, domain.WrapError(domain.ErrConfig, "ask", fmt.Errorf("chat model is not configured"))
	}
	if k <= 0 {
		k = retrieval.DefaultK
	}

	results, err := s.retriever.Search(ctx, question, k)
	if err != nil {
		return Response{}, err
	}
	if len(results) == 0 {
		s.logger.Warn().Msg("no context retrieved for question; sending prompt with empty context")
	}

	prompt := s.prompt.Build(AssembleContext(results), question)

	answer, err := s.model.Generate(ctx, prompt)
	if err != nil {
		return Response{}, err
	}

	s.logger.Debug().Int("results", len(results)).Int("prompt_len", len(prompt)).Msg("question answered")
	return Response{Answer: answer, Prompt: prompt, Results: results}, nil
}
