package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/gmontinny/ia-rag/internal/config"
	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/llm/ollama"
	"github.com/gmontinny/ia-rag/internal/infrastructure/llm/openai"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Config{ChunkMinChars: 10, ChunkMaxChars: 5, LLMProvider: "gemini", EmbeddingBackend: "ollama"}
	_, err := New(context.Background(), cfg, Options{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestManifestPath(t *testing.T) {
	cases := []struct {
		manifest string
		want     string
	}{
		{"laws.yaml", filepath.Join("data", "laws.yaml")},
		{"/etc/iarag/laws.yaml", "/etc/iarag/laws.yaml"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := manifestPath(config.Config{DataDir: "data", LawManifest: tc.manifest}); got != tc.want {
			t.Fatalf("manifestPath(%q) = %q, want %q", tc.manifest, got, tc.want)
		}
	}
}

func TestNewProvidersWithoutKeysKeepsModels(t *testing.T) {
	app := &App{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	cfg := config.Config{GeminiModel: "gemini-1.5-pro", GeminiFallbackModel: "gemini-1.5-flash", OpenAIModel: "gpt-4o-mini"}

	providers, err := app.newProviders(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newProviders() error = %v", err)
	}
	gem := providers[domain.ProviderGemini]
	if gem.Generator != nil || gem.Model != "gemini-1.5-pro" || gem.FallbackModel != "gemini-1.5-flash" {
		t.Fatalf("unexpected gemini config %+v", gem)
	}
	if providers[domain.ProviderOpenAI].Generator != nil {
		t.Fatalf("openai must stay unconfigured without a key")
	}
}

func TestNewProvidersBuildsOpenAIWithKey(t *testing.T) {
	app := &App{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	cfg := config.Config{OpenAIAPIKey: "sk-test", OpenAIModel: "gpt-4o-mini", OpenAIBaseURL: "http://127.0.0.1:1/v1", LLMRateLimitRPS: 2}

	providers, err := app.newProviders(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newProviders() error = %v", err)
	}
	if providers[domain.ProviderOpenAI].Generator == nil {
		t.Fatalf("expected openai generator")
	}
}

func TestNewEmbedderSelectsBackend(t *testing.T) {
	exec := resilience.NewExecutor(resilience.DefaultConfig())

	emb, err := newEmbedder(config.Config{EmbeddingBackend: "ollama", OllamaURL: "http://localhost:11434", EmbeddingModel: "nomic-embed-text"}, exec)
	if err != nil {
		t.Fatalf("newEmbedder(ollama) error = %v", err)
	}
	if _, ok := emb.(*ollama.Embedder); !ok {
		t.Fatalf("expected ollama embedder, got %T", emb)
	}

	emb, err = newEmbedder(config.Config{EmbeddingBackend: "OpenAI", EmbeddingURL: "http://localhost:8000/v1", EmbeddingModel: "bge-m3"}, exec)
	if err != nil {
		t.Fatalf("newEmbedder(openai) error = %v", err)
	}
	if _, ok := emb.(*openai.Embedder); !ok {
		t.Fatalf("expected openai embedder, got %T", emb)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty(" ", "", " b ", "c"); got != "b" {
		t.Fatalf("firstNonEmpty() = %q", got)
	}
}
