package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/core/ports"
)

const (
	defaultMaxTokens = 800
	noEvidenceHint   = "no evidence retrieved; try without the hybrid prefilter (--no-hybrid) or drop --filter-law"
)

// EvidenceRetriever yields enriched evidence for a question.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.Retrieval, error)
}

// ProviderConfig binds a generator to its primary and alternate models.
// A nil Generator marks a known but unconfigured provider.
type ProviderConfig struct {
	Generator     ports.Generator
	Model         string
	FallbackModel string
}

type AskOptions struct {
	DefaultProvider domain.Provider
	Providers       map[domain.Provider]ProviderConfig
	FallbackTerms   []string
	Observer        Observer
	Logger          *slog.Logger
}

// AskService answers questions from retrieved evidence with a three step fallback:
// requested model, alternate model, extractive summary.
type AskService struct {
	retriever       EvidenceRetriever
	providers       map[domain.Provider]ProviderConfig
	defaultProvider domain.Provider
	fallbackTerms   []string
	observer        Observer
	logger          *slog.Logger
}

func NewAskService(retriever EvidenceRetriever, options AskOptions) *AskService {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	providers := options.Providers
	if providers == nil {
		providers = map[domain.Provider]ProviderConfig{}
	}
	defaultProvider := options.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = domain.ProviderGemini
	}
	return &AskService{
		retriever:       retriever,
		providers:       providers,
		defaultProvider: defaultProvider,
		fallbackTerms:   options.FallbackTerms,
		observer:        observerOrNop(options.Observer),
		logger:          logger,
	}
}

func (s *AskService) Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("query is required"))
	}
	if req.Temperature < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("temperature must be >= 0, got %v", req.Temperature))
	}
	provider := s.defaultProvider
	if strings.TrimSpace(req.Provider) != "" {
		parsed, err := domain.ParseProvider(req.Provider)
		if err != nil {
			return nil, err
		}
		provider = parsed
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	start := time.Now()
	retrieval, err := s.retriever.Retrieve(ctx, domain.RetrieveRequest{
		Query:     query,
		TopK:      topK,
		Hybrid:    req.Hybrid,
		FilterLaw: req.FilterLaw,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}

	answer := &domain.Answer{
		Provider:   provider,
		References: domain.ReferencesFor(retrieval.Evidence),
		Degraded:   retrieval.Degraded,
	}
	if req.Debug {
		answer.Evidence = retrieval.Evidence
	}
	if len(retrieval.Evidence) == 0 {
		answer.Text = noEvidenceAnswer
		answer.Strategy = domain.StrategyUnanswerable
		s.observer.ObserveAnswer(string(provider), answer.Strategy, 0, time.Since(start))
		return answer, domain.WrapError(domain.ErrUnanswerable, "ask", errors.New(noEvidenceHint))
	}

	prompt := BuildPrompt(query, retrieval.Evidence)
	if req.Debug {
		answer.Prompt = &prompt
	}

	cfg := s.providers[provider]
	primary := domain.GenerationParams{
		Model:       firstNonBlank(req.Model, cfg.Model),
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}
	alternate := primary
	alternate.Model = firstNonBlank(cfg.FallbackModel, primary.Model)
	alternate.Permissive = true

	terms := salientTerms(s.fallbackTerms, query)
	strategies := []strategy{
		{name: domain.StrategyPrimary, run: s.generate(provider, cfg.Generator, domain.StrategyPrimary, prompt, primary)},
		{name: domain.StrategyAlternate, run: s.generate(provider, cfg.Generator, domain.StrategyAlternate, prompt, alternate)},
		{name: domain.StrategyExtractive, run: func(context.Context) (string, error) {
			return extractiveAnswer(retrieval.Evidence, terms)
		}},
	}

	text, used, attempts, err := firstSuccess(ctx, strategies)
	answer.Attempts = attempts
	if err != nil {
		answer.Text = noEvidenceAnswer
		answer.Strategy = domain.StrategyUnanswerable
		s.observer.ObserveAnswer(string(provider), answer.Strategy, len(retrieval.Evidence), time.Since(start))
		return answer, domain.WrapError(domain.ErrUnanswerable, "ask", err)
	}
	if used != domain.StrategyPrimary {
		s.logger.Warn("generation_fallback",
			"provider", provider,
			"strategy", used,
			"attempts", len(attempts),
		)
	}
	answer.Text = text
	answer.Strategy = used
	s.observer.ObserveAnswer(string(provider), used, len(retrieval.Evidence), time.Since(start))
	return answer, nil
}

func (s *AskService) generate(
	provider domain.Provider,
	gen ports.Generator,
	name string,
	prompt domain.Prompt,
	params domain.GenerationParams,
) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if gen == nil {
			return "", domain.WrapError(domain.ErrGeneration, name, fmt.Errorf("provider %s is not configured", provider))
		}
		start := time.Now()
		text, err := gen.Generate(ctx, prompt, params)
		s.observer.ObserveGeneration(string(provider), name, time.Since(start), err)
		if err != nil {
			s.logger.Warn("generation_failed",
				"provider", provider,
				"strategy", name,
				"model", params.Model,
				"error", err,
			)
		}
		return text, err
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
