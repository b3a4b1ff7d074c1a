package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/fabfab/pdf-rag/config"
	"github.com/fabfab/pdf-rag/domain"
)

type geminiProvider struct {
	apiKey         string
	embeddingModel string
	chatModel      string

	once    sync.Once
	client  *googleai.GoogleAI
	initErr error
}

func newGeminiProvider(cfg config.Config) (Provider, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, domain.WrapError(domain.ErrProvider, "gemini setup", fmt.Errorf("GOOGLE_API_KEY not set"))
	}

	return &geminiProvider{
		apiKey:         cfg.GoogleAPIKey,
		embeddingModel: cfg.GoogleEmbeddingModel,
		chatModel:      cfg.GoogleLLMModel,
	}, nil
}

func (p *geminiProvider) Name() string { return config.ProviderGemini }

// The googleai client is built on first use so that construction stays free
// of network setup.
func (p *geminiProvider) getClient(ctx context.Context) (*googleai.GoogleAI, error) {
	p.once.Do(func() {
		p.client, p.initErr = googleai.New(ctx,
			googleai.WithAPIKey(p.apiKey),
			googleai.WithDefaultModel(p.chatModel),
			googleai.WithDefaultEmbeddingModel(p.embeddingModel),
		)
	})
	if p.initErr != nil {
		return nil, domain.WrapError(domain.ErrProvider, "create gemini client", p.initErr)
	}
	return p.client, nil
}

func (p *geminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	vectors, err := client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProvider, "create gemini embeddings", err)
	}
	if err := checkEmbeddingCount(config.ProviderGemini, texts, vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *geminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	answer, err := llms.GenerateFromSinglePrompt(ctx, client, prompt,
		llms.WithModel(p.chatModel),
		llms.WithTemperature(0),
	)
	if err != nil {
		return "", domain.WrapError(domain.ErrProvider, "generate gemini content", err)
	}
	return answer, nil
}
