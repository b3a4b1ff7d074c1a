package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	VectorStorePGVector = "pgvector"
	VectorStoreChromem  = "chromem"
)

// Config is resolved once per process and passed by value to every component.
type Config struct {
	Provider       string
	CollectionName string
	DatabaseURL    string

	OpenAIEmbeddingModel string
	OpenAILLMModel       string
	OpenAIAPIKey         string
	OpenAIBaseURL        string

	GoogleEmbeddingModel string
	GoogleLLMModel       string
	GoogleAPIKey         string

	PDFPath  string
	Language string
	TopK     int

	VectorStore string
	ChromemPath string

	Neo4jURI  string
	Neo4jUser string
	Neo4jPass string

	LogLevel       string
	RequestTimeout time.Duration
	ListenAddr     string
}

func Load() Config {
	return Config{
		Provider:       strings.ToLower(strings.TrimSpace(getEnv("PROVIDER", ProviderOpenAI))),
		CollectionName: strings.TrimSpace(getEnv("COLLECTION_NAME", "document_pdf")),
		DatabaseURL:    databaseURL(),

		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		OpenAILLMModel:       getEnv("OPENAI_LLM_MODEL", "gpt-5-nano"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),

		GoogleEmbeddingModel: getEnv("GOOGLE_EMBEDDING_MODEL", "models/embedding-001"),
		GoogleLLMModel:       getEnv("GOOGLE_LLM_MODEL", "gemini-2.5-flash-lite"),
		GoogleAPIKey:         getEnv("GOOGLE_API_KEY", ""),

		PDFPath:  getEnv("PDF_PATH", "document.pdf"),
		Language: strings.ToLower(strings.TrimSpace(getEnv("PROMPT_LANGUAGE", "en"))),
		TopK:     getEnvInt("RAG_TOP_K", 10),

		VectorStore: strings.ToLower(strings.TrimSpace(getEnv("VECTOR_STORE", VectorStorePGVector))),
		ChromemPath: getEnv("CHROMEM_PATH", "./data/chromem"),

		Neo4jURI:  getEnv("NEO4J_URI", ""),
		Neo4jUser: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass: getEnv("NEO4J_PASSWORD", ""),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 2*time.Minute),
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
	}
}

// GraphEnabled reports whether a Neo4j provenance graph is configured.
func (c Config) GraphEnabled() bool {
	return strings.TrimSpace(c.Neo4jURI) != ""
}

func databaseURL() string {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		return dsn
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "postgres"), getEnv("POSTGRES_PASSWORD", "postgres")),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + getEnv("POSTGRES_DB", "rag"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
