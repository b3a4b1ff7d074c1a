// Package provider is the embedding and chat-completion gateway. Every
// provider family implements one Provider capability; the family is chosen
// once from the configured provider tag.
package provider

import (
	"context"
	"fmt"

	"github.com/fabfab/pdf-rag/config"
	"github.com/fabfab/pdf-rag/domain"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type ChatModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Provider interface {
	Name() string
	Embedder
	ChatModel
}

// Factory builds a provider family from configuration. It must not perform
// network I/O.
type Factory func(cfg config.Config) (Provider, error)

var factories = map[string]Factory{
	config.ProviderOpenAI: newOpenAIProvider,
	config.ProviderGemini: newGeminiProvider,
}

// New returns the provider family registered for cfg.Provider. Unknown and
// empty tags fall back to the OpenAI family.
func New(cfg config.Config) (Provider, error) {
	factory, ok := factories[cfg.Provider]
	if !ok {
		factory = factories[config.ProviderOpenAI]
	}

	p, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	return New(cfg)
}

func NewChatModel(cfg config.Config) (ChatModel, error) {
	return New(cfg)
}

func checkEmbeddingCount(provider string, texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return domain.WrapError(domain.ErrProvider, provider+" embeddings",
			fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(vectors)))
	}
	return nil
}
