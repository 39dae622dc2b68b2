package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesStoreDefaults(t *testing.T) {
	for _, key := range []string{"ELASTICSEARCH_URL", "ELASTIC_INDEX", "ES_TIMEOUT", "QDRANT_COLLECTION", "QDRANT_TIMEOUT", "QDRANT_UPSERT_BATCH", "NEO4J_URL", "DATA_DIR", "LLM_PROVIDER", "FALLBACK_TERMS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ElasticsearchURL != "http://localhost:9200" {
		t.Fatalf("expected default elasticsearch url, got %q", cfg.ElasticsearchURL)
	}
	if cfg.ElasticIndex != "anvisa_docs" {
		t.Fatalf("expected default index anvisa_docs, got %q", cfg.ElasticIndex)
	}
	if cfg.ElasticsearchTimeout != 15*time.Second {
		t.Fatalf("expected 15s es timeout, got %s", cfg.ElasticsearchTimeout)
	}
	if cfg.QdrantCollection != "anvisa_chunks" || cfg.QdrantTimeout != 60*time.Second || cfg.QdrantUpsertBatch != 256 {
		t.Fatalf("unexpected qdrant defaults: %+v", cfg)
	}
	if cfg.Neo4jURL != "bolt://localhost:7687" {
		t.Fatalf("expected default neo4j url, got %q", cfg.Neo4jURL)
	}
	if cfg.LLMProvider != "gemini" {
		t.Fatalf("expected gemini provider, got %q", cfg.LLMProvider)
	}
	if len(cfg.FallbackTerms) != 12 || cfg.FallbackTerms[0] != "infração" {
		t.Fatalf("unexpected fallback terms: %v", cfg.FallbackTerms)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("ES_TIMEOUT", "2.5")
	t.Setenv("CHUNK_MIN_CHARS", "80")
	t.Setenv("CHUNK_MAX_CHARS", "1200")
	t.Setenv("FALLBACK_TERMS", " multa , interdição ,,")
	t.Setenv("BREAKER_ENABLED", "false")

	cfg := Load()
	if cfg.ElasticsearchTimeout != 2500*time.Millisecond {
		t.Fatalf("expected fractional seconds, got %s", cfg.ElasticsearchTimeout)
	}
	if cfg.ChunkMinChars != 80 || cfg.ChunkMaxChars != 1200 {
		t.Fatalf("unexpected chunk bounds %d/%d", cfg.ChunkMinChars, cfg.ChunkMaxChars)
	}
	if len(cfg.FallbackTerms) != 2 || cfg.FallbackTerms[1] != "interdição" {
		t.Fatalf("unexpected fallback terms %v", cfg.FallbackTerms)
	}
	if cfg.BreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
}

func TestValidateRejectsInconsistentChunking(t *testing.T) {
	cfg := Load()
	cfg.ChunkMinChars = 2000
	cfg.ChunkOverlapSentences = cfg.ChunkWindowSentences
	cfg.LLMProvider = "ollama"

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadDotEnvKeepsExistingVariables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("ELASTIC_INDEX=from_file\nQDRANT_COLLECTION=from_file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ELASTIC_INDEX", "from_env")
	t.Setenv("QDRANT_COLLECTION", "")
	if err := os.Unsetenv("QDRANT_COLLECTION"); err != nil {
		t.Fatalf("unset: %v", err)
	}

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("ELASTIC_INDEX"); got != "from_env" {
		t.Fatalf("expected existing variable to win, got %q", got)
	}
	if got := os.Getenv("QDRANT_COLLECTION"); got != "from_file" {
		t.Fatalf("expected variable from file, got %q", got)
	}
}
