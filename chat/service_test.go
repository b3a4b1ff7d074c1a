package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fabfab/pdf-rag/domain"
	"github.com/fabfab/pdf-rag/provider"
)

type stubRetriever struct {
	results []domain.ScoredChunk
	err     error
	k       int
	query   string
}

func (s *stubRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	s.query = query
	s.k = k
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

var _ Retriever = (*stubRetriever)(nil)

type stubModel struct {
	answer  string
	err     error
	prompts []string
}

func (s *stubModel) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

var _ provider.ChatModel = (*stubModel)(nil)

func warrantyResults() []domain.ScoredChunk {
	return []domain.ScoredChunk{
		{Chunk: domain.Chunk{Content: "The warranty period is 24 months.", Source: "manual.pdf", Page: 2}, Score: 0.18},
		{Chunk: domain.Chunk{Content: "Welcome to the product manual.", Source: "manual.pdf", Page: 1}, Score: 0.71},
	}
}

func TestAskGroundsPromptOnRetrievedChunks(t *testing.T) {
	retriever := &stubRetriever{results: warrantyResults()}
	model := &stubModel{answer: "  The warranty period is 24 months.\n"}
	svc := NewService(retriever, model, Prompt{}, zerolog.Nop())

	resp, err := svc.Ask(context.Background(), "What is the warranty period?", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if retriever.k != 10 {
		t.Fatalf("expected default k of 10, got %d", retriever.k)
	}
	if resp.Answer != "  The warranty period is 24 months.\n" {
		t.Fatalf("answer must be returned unmodified, got %q", resp.Answer)
	}
	if len(model.prompts) != 1 || model.prompts[0] != resp.Prompt {
		t.Fatal("expected exactly the returned prompt to be sent to the model")
	}
	if !strings.Contains(resp.Prompt, "[source=manual.pdf page=2 score=0.18]\nThe warranty period is 24 months.") {
		t.Fatalf("prompt missing retrieved chunk:\n%s", resp.Prompt)
	}
	if strings.Contains(resp.Answer, englishRefusal) {
		t.Fatal("a grounded answer must not be the refusal")
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected results to be returned, got %d", len(resp.Results))
	}
}

func TestAskOutOfContextQuestionPromptsForRefusal(t *testing.T) {
	model := &stubModel{answer: englishRefusal}
	svc := NewService(&stubRetriever{results: warrantyResults()}, model, Prompt{}, zerolog.Nop())

	answer, err := svc.Answer(context.Background(), "What is the capital of France?", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != englishRefusal {
		t.Fatalf("unexpected answer %q", answer)
	}

	sent := model.prompts[0]
	if !strings.Contains(sent, "If the information is not explicitly in the CONTEXT, reply:\n  \""+englishRefusal+"\"") {
		t.Fatalf("prompt missing refusal instruction:\n%s", sent)
	}
	if !strings.Contains(sent, "Question: \"What is the capital of France?\"\nAnswer: \""+englishRefusal+"\"") {
		t.Fatalf("prompt missing worked refusal example:\n%s", sent)
	}
}

func TestAskSendsPromptWhenNothingRetrieved(t *testing.T) {
	model := &stubModel{answer: englishRefusal}
	svc := NewService(&stubRetriever{results: nil}, model, Prompt{}, zerolog.Nop())

	resp, err := svc.Ask(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.prompts) != 1 {
		t.Fatal("expected the model to be asked even with empty context")
	}
	if !strings.HasPrefix(resp.Prompt, "CONTEXT:\n\n\nRULES:") {
		t.Fatalf("expected empty context block, got:\n%s", resp.Prompt)
	}
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	model := &stubModel{}
	svc := NewService(&stubRetriever{}, model, Prompt{}, zerolog.Nop())

	if _, err := svc.Ask(context.Background(), "   ", 10); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(model.prompts) != 0 {
		t.Fatal("model must not be called for a blank question")
	}
}

func TestAskPropagatesErrors(t *testing.T) {
	storeErr := domain.WrapError(domain.ErrStorage, "search", errors.New("connection refused"))
	svc := NewService(&stubRetriever{err: storeErr}, &stubModel{}, Prompt{}, zerolog.Nop())
	if _, err := svc.Ask(context.Background(), "question", 10); !domain.IsKind(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}

	providerErr := domain.WrapError(domain.ErrProvider, "generate", errors.New("rate limited"))
	svc = NewService(&stubRetriever{results: warrantyResults()}, &stubModel{err: providerErr}, Prompt{}, zerolog.Nop())
	if _, err := svc.Ask(context.Background(), "question", 10); !domain.IsKind(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestAskUsesConfiguredLanguage(t *testing.T) {
	pt, err := LoadPrompt("pt")
	if err != nil {
		t.Fatalf("load prompt: %v", err)
	}
	model := &stubModel{answer: "ok"}
	svc := NewService(&stubRetriever{}, model, pt, zerolog.Nop())

	if _, err := svc.Ask(context.Background(), "Qual é a garantia?", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(model.prompts[0], "PERGUNTA DO USUÁRIO:\nQual é a garantia?") {
		t.Fatalf("expected portuguese template:\n%s", model.prompts[0])
	}
}
