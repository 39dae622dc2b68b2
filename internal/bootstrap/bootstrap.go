package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gmontinny/ia-rag/internal/config"
	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/core/ports"
	"github.com/gmontinny/ia-rag/internal/core/usecase"
	"github.com/gmontinny/ia-rag/internal/infrastructure/chunking"
	"github.com/gmontinny/ia-rag/internal/infrastructure/extractor"
	"github.com/gmontinny/ia-rag/internal/infrastructure/graph/neo4j"
	"github.com/gmontinny/ia-rag/internal/infrastructure/lexical/elasticsearch"
	"github.com/gmontinny/ia-rag/internal/infrastructure/llm"
	"github.com/gmontinny/ia-rag/internal/infrastructure/llm/gemini"
	"github.com/gmontinny/ia-rag/internal/infrastructure/llm/ollama"
	"github.com/gmontinny/ia-rag/internal/infrastructure/llm/openai"
	"github.com/gmontinny/ia-rag/internal/infrastructure/queue/nats"
	"github.com/gmontinny/ia-rag/internal/infrastructure/repository/postgres"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
	"github.com/gmontinny/ia-rag/internal/infrastructure/storage/localfs"
	"github.com/gmontinny/ia-rag/internal/infrastructure/vector/qdrant"
	"github.com/gmontinny/ia-rag/internal/observability/metrics"
)

type Options struct {
	Service string
	Logger  *slog.Logger
}

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Searcher ports.Searcher
	Asker    ports.Asker
	Ingestor ports.LawIngestor
	Catalog  ports.LawCatalog

	lexical  *elasticsearch.Client
	vectors  *qdrant.Client
	graph    *neo4j.Store
	embedder ports.Embedder
	closers  []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate config", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := opts.Service
	if service == "" {
		service = "iarag"
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(service),
	}
	ready := false
	defer func() {
		if !ready {
			app.Close()
		}
	}()

	base := resilience.DefaultConfig()
	base.RetryInitialBackoff = cfg.RetryInitialBackoff
	base.RetryMaxBackoff = cfg.RetryMaxBackoff
	base.BreakerEnabled = cfg.BreakerEnabled

	var err error
	app.lexical, err = elasticsearch.New(cfg.ElasticsearchURL, cfg.ElasticIndex, elasticsearch.Options{
		ResilienceExecutor: resilience.NewExecutor(base.WithAttempts(0, cfg.ElasticsearchTimeout)),
	})
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch: %w", err)
	}

	app.vectors, err = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		APIKey:             cfg.QdrantAPIKey,
		UpsertBatch:        cfg.QdrantUpsertBatch,
		ResilienceExecutor: resilience.NewExecutor(base.WithAttempts(cfg.QdrantRetries, cfg.QdrantTimeout)),
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init qdrant: %w", err)
	}
	app.closers = append(app.closers, func() { _ = app.vectors.Close() })

	app.graph, err = neo4j.New(cfg.Neo4jURL, cfg.Neo4jUser, cfg.Neo4jPassword, neo4j.Options{
		Database:           cfg.Neo4jDatabase,
		ResilienceExecutor: resilience.NewExecutor(base.WithAttempts(0, cfg.Neo4jTimeout)),
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	app.closers = append(app.closers, func() { _ = app.graph.Close(context.Background()) })

	llmExecutor := resilience.NewExecutor(base.WithAttempts(cfg.LLMRetries, cfg.LLMTimeout))
	app.embedder, err = newEmbedder(cfg, llmExecutor)
	if err != nil {
		return nil, err
	}

	providers, err := app.newProviders(ctx, cfg, llmExecutor)
	if err != nil {
		return nil, err
	}

	var registry ports.LawRegistry
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		repo := postgres.NewLawRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		registry = repo
	}

	var publisher ports.EventPublisher
	if strings.TrimSpace(cfg.NATSURL) != "" {
		pub, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(base),
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init nats: %w", err)
		}
		app.closers = append(app.closers, pub.Close)
		publisher = pub
	}

	storage, err := localfs.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init source storage: %w", err)
	}
	manifest, err := extractor.LoadManifest(manifestPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("load law manifest: %w", err)
	}

	enricher := usecase.NewEnricher(app.graph, usecase.EnricherOptions{
		Concurrency: cfg.EnrichConcurrency,
		Observer:    app.Metrics,
		Logger:      logger,
	})
	search := usecase.NewSearchService(app.lexical, app.vectors, app.embedder, enricher, usecase.SearchOptions{
		Observer: app.Metrics,
		Logger:   logger,
	})
	app.Searcher = search
	app.Asker = usecase.NewAskService(search, usecase.AskOptions{
		DefaultProvider: domain.Provider(strings.ToLower(cfg.LLMProvider)),
		Providers:       providers,
		FallbackTerms:   cfg.FallbackTerms,
		Observer:        app.Metrics,
		Logger:          logger,
	})
	segmenter := chunking.NewSegmenter(chunking.Options{
		MinChars:         cfg.ChunkMinChars,
		MaxChars:         cfg.ChunkMaxChars,
		WindowSentences:  cfg.ChunkWindowSentences,
		OverlapSentences: cfg.ChunkOverlapSentences,
	})
	app.Ingestor = usecase.NewIngestService(
		extractor.NewLoader(storage, manifest),
		segmenter,
		app.embedder, app.lexical, app.vectors, app.graph,
		usecase.IngestOptions{
			Registry:             registry,
			Publisher:            publisher,
			EmbedBatch:           cfg.EmbeddingBatch,
			SegmenterFingerprint: segmenter.Fingerprint(),
			Observer:             app.Metrics,
			Logger:               logger,
		},
	)
	app.Catalog = usecase.NewLawCatalogService(registry)
	ready = true
	return app, nil
}

// PrepareStores creates the index, collection and graph constraints ingestion writes to.
// The vector size is probed from the configured embedder.
func (a *App) PrepareStores(ctx context.Context) error {
	if err := a.lexical.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure elasticsearch index: %w", err)
	}
	probe, err := a.embedder.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("probe embedding size: %w", err)
	}
	if err := a.vectors.EnsureCollection(ctx, len(probe)); err != nil {
		return fmt.Errorf("ensure qdrant collection: %w", err)
	}
	if err := a.graph.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure neo4j schema: %w", err)
	}
	return nil
}

// Ready pings every retrieval store once. Failures are joined so each offending store is reported.
func (a *App) Ready(ctx context.Context) error {
	return errors.Join(
		a.lexical.Ping(ctx),
		a.vectors.Ping(ctx),
		a.graph.Ping(ctx),
	)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newEmbedder(cfg config.Config, executor *resilience.Executor) (ports.Embedder, error) {
	switch strings.ToLower(cfg.EmbeddingBackend) {
	case "openai":
		embedder, err := openai.NewEmbedder(cfg.OpenAIAPIKey, openai.EmbedderOptions{
			BaseURL:            firstNonEmpty(cfg.EmbeddingURL, cfg.OpenAIBaseURL),
			Model:              cfg.EmbeddingModel,
			BatchSize:          cfg.EmbeddingBatch,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai embedder: %w", err)
		}
		return embedder, nil
	default:
		client := ollama.New(firstNonEmpty(cfg.EmbeddingURL, cfg.OllamaURL), cfg.EmbeddingModel, ollama.Options{
			Timeout:            cfg.LLMTimeout,
			ResilienceExecutor: executor,
		})
		return ollama.NewEmbedder(client), nil
	}
}

// newProviders builds every provider with credentials. Providers without an API key stay
// registered with a nil generator so the answerer can fall back instead of rejecting them.
func (a *App) newProviders(ctx context.Context, cfg config.Config, executor *resilience.Executor) (map[domain.Provider]usecase.ProviderConfig, error) {
	providers := map[domain.Provider]usecase.ProviderConfig{
		domain.ProviderGemini: {Model: cfg.GeminiModel, FallbackModel: cfg.GeminiFallbackModel},
		domain.ProviderOpenAI: {Model: cfg.OpenAIModel, FallbackModel: cfg.OpenAIFallbackModel},
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gen, err := gemini.New(ctx, cfg.GeminiAPIKey, gemini.Options{
			DefaultModel:       cfg.GeminiModel,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini: %w", err)
		}
		a.closers = append(a.closers, func() { _ = gen.Close() })
		p := providers[domain.ProviderGemini]
		p.Generator = llm.NewRateLimited(gen, cfg.LLMRateLimitRPS)
		providers[domain.ProviderGemini] = p
	}

	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		gen, err := openai.NewGenerator(cfg.OpenAIAPIKey, openai.Options{
			BaseURL:            cfg.OpenAIBaseURL,
			DefaultModel:       cfg.OpenAIModel,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai: %w", err)
		}
		p := providers[domain.ProviderOpenAI]
		p.Generator = llm.NewRateLimited(gen, cfg.LLMRateLimitRPS)
		providers[domain.ProviderOpenAI] = p
	}

	if providers[domain.ProviderGemini].Generator == nil && providers[domain.ProviderOpenAI].Generator == nil {
		a.Logger.Warn("no_llm_provider_configured", "hint", "set GEMINI_API_KEY or OPENAI_API_KEY; answers will be extractive")
	}
	return providers, nil
}

func manifestPath(cfg config.Config) string {
	path := strings.TrimSpace(cfg.LawManifest)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.DataDir, path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
