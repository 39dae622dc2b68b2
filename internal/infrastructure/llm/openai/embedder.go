package openai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

// Embedder talks to any OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	embedder embeddings.Embedder
	executor *resilience.Executor
}

type EmbedderOptions struct {
	BaseURL            string
	Model              string
	BatchSize          int
	ResilienceExecutor *resilience.Executor
}

func NewEmbedder(apiKey string, options EmbedderOptions) (*Embedder, error) {
	token := apiKey
	if token == "" {
		// local OpenAI-compatible servers accept any token
		token = "none"
	}
	opts := []openai.Option{openai.WithToken(token)}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	if options.Model != "" {
		opts = append(opts, openai.WithEmbeddingModel(options.Model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai embedding client: %w", err)
	}

	embedOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if options.BatchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(options.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &Embedder{embedder: embedder, executor: options.ResilienceExecutor}, nil
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := resilience.Do(ctx, e.executor, "openai.embed", func(ctx context.Context) ([][]float32, error) {
		return e.embedder.EmbedDocuments(ctx, texts)
	}, classifyOpenAIError)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreEmbedder, "embed", wrapTemporaryIfNeeded("openai embed", err))
	}
	if len(vectors) != len(texts) {
		return nil, domain.NewStoreError(domain.StoreEmbedder, "embed", fmt.Errorf("got %d embeddings for %d inputs", len(vectors), len(texts)))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := resilience.Do(ctx, e.executor, "openai.embed_query", func(ctx context.Context) ([]float32, error) {
		return e.embedder.EmbedQuery(ctx, text)
	}, classifyOpenAIError)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreEmbedder, "embed query", wrapTemporaryIfNeeded("openai embed query", err))
	}
	if len(vector) == 0 {
		return nil, domain.NewStoreError(domain.StoreEmbedder, "embed query", fmt.Errorf("empty embedding result"))
	}
	return vector, nil
}
