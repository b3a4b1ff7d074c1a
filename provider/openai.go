package provider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fabfab/pdf-rag/config"
	"github.com/fabfab/pdf-rag/domain"
)

const openAIEmbeddingBatchSize = 256

type openAIProvider struct {
	client         *openai.Client
	embeddingModel string
	chatModel      string
}

func newOpenAIProvider(cfg config.Config) (Provider, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, domain.WrapError(domain.ErrProvider, "openai setup", fmt.Errorf("OPENAI_API_KEY not set"))
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	if cfg.RequestTimeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &openAIProvider{
		client:         openai.NewClientWithConfig(clientCfg),
		embeddingModel: cfg.OpenAIEmbeddingModel,
		chatModel:      cfg.OpenAILLMModel,
	}, nil
}

func (p *openAIProvider) Name() string { return config.ProviderOpenAI }

func (p *openAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += openAIEmbeddingBatchSize {
		end := min(start+openAIEmbeddingBatchSize, len(texts))
		batch := texts[start:end]

		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(p.embeddingModel),
			Input: batch,
		})
		if err != nil {
			return nil, domain.WrapError(domain.ErrProvider, "create openai embeddings", err)
		}

		vectors := make([][]float32, len(resp.Data))
		for _, datum := range resp.Data {
			if datum.Index < 0 || datum.Index >= len(vectors) {
				return nil, domain.WrapError(domain.ErrProvider, "create openai embeddings",
					fmt.Errorf("embedding index %d out of range", datum.Index))
			}
			vectors[datum.Index] = datum.Embedding
		}
		if err := checkEmbeddingCount(config.ProviderOpenAI, batch, vectors); err != nil {
			return nil, err
		}
		results = append(results, vectors...)
	}

	return results, nil
}

func (p *openAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if !fixedTemperatureModel(p.chatModel) {
		// go-openai omits a zero temperature from the request body.
		req.Temperature = math.SmallestNonzeroFloat32
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", domain.WrapError(domain.ErrProvider, "create openai chat completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrProvider, "create openai chat completion", fmt.Errorf("no choices returned"))
	}

	return resp.Choices[0].Message.Content, nil
}

// fixedTemperatureModel reports models that only accept the server default
// temperature.
func fixedTemperatureModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
