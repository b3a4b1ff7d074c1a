package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fabfab/pdf-rag/config"
	"github.com/fabfab/pdf-rag/domain"
)

func testConfig(providerTag string) config.Config {
	return config.Config{
		Provider:             providerTag,
		OpenAIAPIKey:         "sk-test",
		OpenAIEmbeddingModel: "text-embedding-3-small",
		OpenAILLMModel:       "gpt-5-nano",
		GoogleAPIKey:         "g-test",
		GoogleEmbeddingModel: "models/embedding-001",
		GoogleLLMModel:       "gemini-2.5-flash-lite",
	}
}

func TestNewDispatchesOnProviderTag(t *testing.T) {
	cases := []struct {
		tag  string
		want string
	}{
		{tag: "gemini", want: config.ProviderGemini},
		{tag: "openai", want: config.ProviderOpenAI},
		{tag: "", want: config.ProviderOpenAI},
		{tag: "anthropic", want: config.ProviderOpenAI},
		{tag: "GEMINI", want: config.ProviderOpenAI},
	}

	for _, tc := range cases {
		cfg := testConfig(tc.tag)

		embedder, err := NewEmbedder(cfg)
		if err != nil {
			t.Fatalf("tag %q: embedder error: %v", tc.tag, err)
		}
		chatModel, err := NewChatModel(cfg)
		if err != nil {
			t.Fatalf("tag %q: chat model error: %v", tc.tag, err)
		}

		if got := embedder.(Provider).Name(); got != tc.want {
			t.Fatalf("tag %q: expected %s embeddings, got %s", tc.tag, tc.want, got)
		}
		if got := chatModel.(Provider).Name(); got != tc.want {
			t.Fatalf("tag %q: expected %s chat model, got %s", tc.tag, tc.want, got)
		}
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	openaiCfg := testConfig(config.ProviderOpenAI)
	openaiCfg.OpenAIAPIKey = ""
	if _, err := New(openaiCfg); !domain.IsKind(err, domain.ErrProvider) {
		t.Fatalf("expected provider error for missing OPENAI_API_KEY, got %v", err)
	}

	geminiCfg := testConfig(config.ProviderGemini)
	geminiCfg.GoogleAPIKey = ""
	if _, err := New(geminiCfg); !domain.IsKind(err, domain.ErrProvider) {
		t.Fatalf("expected provider error for missing GOOGLE_API_KEY, got %v", err)
	}
}

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) config.Config {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testConfig(config.ProviderOpenAI)
	cfg.OpenAIBaseURL = srv.URL + "/v1"
	return cfg
}

func TestOpenAIEmbedOrdersByIndex(t *testing.T) {
	var gotModel string
	cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		gotModel = body.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`)
	})

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	vectors, err := p.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if gotModel != "text-embedding-3-small" {
		t.Fatalf("expected configured embedding model, got %q", gotModel)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("unexpected vectors: %#v", vectors)
	}
}

func TestOpenAIEmbedCountMismatch(t *testing.T) {
	cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}]}`)
	})

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Embed(context.Background(), []string{"a", "b"}); !domain.IsKind(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestOpenAIGenerateSendsPromptAtLowestTemperature(t *testing.T) {
	var body struct {
		Model       string   `json:"model"`
		Temperature *float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[
			{"index":0,"message":{"role":"assistant","content":"  raw answer  "},"finish_reason":"stop"}
		]}`)
	})

	cfg.OpenAILLMModel = "gpt-4o-mini"

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	answer, err := p.Generate(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if answer != "  raw answer  " {
		t.Fatalf("expected untouched answer, got %q", answer)
	}
	if body.Model != "gpt-4o-mini" {
		t.Fatalf("expected chat model gpt-4o-mini, got %q", body.Model)
	}
	if body.Temperature == nil || *body.Temperature > 1e-6 {
		t.Fatalf("expected near-zero temperature, got %v", body.Temperature)
	}
	if len(body.Messages) != 1 || body.Messages[0].Content != "the prompt" || body.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %#v", body.Messages)
	}
}

func TestOpenAIGenerateOmitsTemperatureForReasoningModels(t *testing.T) {
	var raw map[string]any
	cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &raw)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[
			{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}
		]}`)
	})

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Generate(context.Background(), "q"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, ok := raw["temperature"]; ok {
		t.Fatalf("expected temperature to be omitted for gpt-5-nano, got %v", raw["temperature"])
	}
}

func TestOpenAIGenerateWrapsAPIErrors(t *testing.T) {
	cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Generate(context.Background(), "q"); !domain.IsKind(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
