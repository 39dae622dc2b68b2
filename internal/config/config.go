package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort   string
	LogLevel  string
	LogFormat string

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration
	APIRequestTimeout   time.Duration

	ElasticsearchURL     string
	ElasticIndex         string
	ElasticsearchTimeout time.Duration

	QdrantURL         string
	QdrantAPIKey      string
	QdrantCollection  string
	QdrantTimeout     time.Duration
	QdrantRetries     int
	QdrantUpsertBatch int

	Neo4jURL      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	Neo4jTimeout  time.Duration

	EmbeddingBackend string
	EmbeddingModel   string
	EmbeddingURL     string
	EmbeddingBatch   int
	OllamaURL        string

	LLMProvider         string
	GeminiAPIKey        string
	GeminiModel         string
	GeminiFallbackModel string
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAIFallbackModel string
	OpenAIBaseURL       string
	LLMRateLimitRPS     float64
	LLMTimeout          time.Duration
	LLMRetries          int

	DataDir     string
	LawManifest string

	ChunkMinChars         int
	ChunkMaxChars         int
	ChunkWindowSentences  int
	ChunkOverlapSentences int

	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	BreakerEnabled      bool
	EnrichConcurrency   int

	FallbackTerms []string

	PostgresDSN string
	NATSURL     string
	NATSSubject string
}

// DefaultFallbackTerms are the sanctioning vocabulary searched by the extractive answer.
const DefaultFallbackTerms = "infração,infrações,penalidade,penalidades,sanção,sanções,multa,advertência,interdição,suspensão,cancelamento,apreensão"

// LoadDotEnv reads .env style files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func Load() Config {
	return Config{
		APIPort:   mustEnv("API_PORT", "8080"),
		LogLevel:  mustEnv("LOG_LEVEL", "info"),
		LogFormat: mustEnv("LOG_FORMAT", "json"),

		APIRateLimitRPS:     mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:   mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:      mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIBackpressureWait: time.Duration(mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250)) * time.Millisecond,
		APIRequestTimeout:   mustEnvSeconds("API_REQUEST_TIMEOUT", 120*time.Second),

		ElasticsearchURL:     mustEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
		ElasticIndex:         mustEnv("ELASTIC_INDEX", "anvisa_docs"),
		ElasticsearchTimeout: mustEnvSeconds("ES_TIMEOUT", 15*time.Second),

		QdrantURL:         mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:      mustEnv("QDRANT_API_KEY", ""),
		QdrantCollection:  mustEnv("QDRANT_COLLECTION", "anvisa_chunks"),
		QdrantTimeout:     mustEnvSeconds("QDRANT_TIMEOUT", 60*time.Second),
		QdrantRetries:     mustEnvInt("QDRANT_RETRIES", 3),
		QdrantUpsertBatch: mustEnvInt("QDRANT_UPSERT_BATCH", 256),

		Neo4jURL:      mustEnv("NEO4J_URL", "bolt://localhost:7687"),
		Neo4jUser:     mustEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: mustEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase: mustEnv("NEO4J_DATABASE", ""),
		Neo4jTimeout:  mustEnvSeconds("NEO4J_TIMEOUT", 15*time.Second),

		EmbeddingBackend: mustEnv("EMBEDDING_BACKEND", "ollama"),
		EmbeddingModel:   mustEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingURL:     mustEnv("EMBEDDING_URL", ""),
		EmbeddingBatch:   mustEnvInt("EMBEDDING_BATCH", 64),
		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),

		LLMProvider:         mustEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:        mustEnv("GEMINI_API_KEY", ""),
		GeminiModel:         mustEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		GeminiFallbackModel: mustEnv("GEMINI_FALLBACK_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:        mustEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         mustEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIFallbackModel: mustEnv("OPENAI_FALLBACK_MODEL", "gpt-4o"),
		OpenAIBaseURL:       mustEnv("OPENAI_BASE_URL", ""),
		LLMRateLimitRPS:     mustEnvFloat("LLM_RATE_LIMIT_RPS", 1),
		LLMTimeout:          mustEnvSeconds("LLM_TIMEOUT", 60*time.Second),
		LLMRetries:          mustEnvInt("LLM_RETRIES", 3),

		DataDir:     mustEnv("DATA_DIR", "./data"),
		LawManifest: mustEnv("LAW_MANIFEST", "laws.yaml"),

		ChunkMinChars:         mustEnvInt("CHUNK_MIN_CHARS", 50),
		ChunkMaxChars:         mustEnvInt("CHUNK_MAX_CHARS", 1500),
		ChunkWindowSentences:  mustEnvInt("CHUNK_WINDOW_SENTENCES", 6),
		ChunkOverlapSentences: mustEnvInt("CHUNK_OVERLAP_SENTENCES", 2),

		RetryInitialBackoff: time.Duration(mustEnvInt("RETRY_INITIAL_BACKOFF_MS", 1000)) * time.Millisecond,
		RetryMaxBackoff:     time.Duration(mustEnvInt("RETRY_MAX_BACKOFF_MS", 8000)) * time.Millisecond,
		BreakerEnabled:      mustEnvBool("BREAKER_ENABLED", true),
		EnrichConcurrency:   mustEnvInt("ENRICH_CONCURRENCY", 8),

		FallbackTerms: mustEnvList("FALLBACK_TERMS", DefaultFallbackTerms),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),
		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "laws.ingested"),
	}
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkMinChars <= 0 || c.ChunkMinChars >= c.ChunkMaxChars {
		errs = append(errs, fmt.Errorf("CHUNK_MIN_CHARS=%d must be positive and below CHUNK_MAX_CHARS=%d", c.ChunkMinChars, c.ChunkMaxChars))
	}
	if c.ChunkWindowSentences <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_WINDOW_SENTENCES=%d must be positive", c.ChunkWindowSentences))
	}
	if c.ChunkOverlapSentences < 0 || c.ChunkOverlapSentences >= c.ChunkWindowSentences {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP_SENTENCES=%d must be in [0, CHUNK_WINDOW_SENTENCES)", c.ChunkOverlapSentences))
	}
	switch strings.ToLower(c.LLMProvider) {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER=%q must be gemini or openai", c.LLMProvider))
	}
	switch strings.ToLower(c.EmbeddingBackend) {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_BACKEND=%q must be ollama or openai", c.EmbeddingBackend))
	}
	if c.QdrantUpsertBatch <= 0 {
		errs = append(errs, fmt.Errorf("QDRANT_UPSERT_BATCH=%d must be positive", c.QdrantUpsertBatch))
	}
	return errors.Join(errs...)
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvSeconds reads a (possibly fractional) number of seconds.
func mustEnvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

func mustEnvList(key, fallback string) []string {
	raw := mustEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
