package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/core/ports"
)

const (
	defaultSearchSize  = 10
	defaultSearchLimit = 5
	defaultTopK        = 6
	minCandidateSize   = 20
)

// SearchService is the retrieval orchestrator over the lexical, vector and graph stores.
type SearchService struct {
	lexical  ports.LexicalIndex
	vectors  ports.VectorIndex
	embedder ports.Embedder
	enricher *Enricher
	observer Observer
	logger   *slog.Logger
}

type SearchOptions struct {
	Observer Observer
	Logger   *slog.Logger
}

func NewSearchService(
	lexical ports.LexicalIndex,
	vectors ports.VectorIndex,
	embedder ports.Embedder,
	enricher *Enricher,
	options SearchOptions,
) *SearchService {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{
		lexical:  lexical,
		vectors:  vectors,
		embedder: embedder,
		enricher: enricher,
		observer: observerOrNop(options.Observer),
		logger:   logger,
	}
}

func (s *SearchService) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	mode, err := domain.ParseRetrievalMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	size := req.Size
	if size <= 0 {
		size = defaultSearchSize
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	filter := domain.VectorFilter{LawID: strings.TrimSpace(req.FilterLaw)}

	start := time.Now()
	result, err := s.search(ctx, mode, query, size, limit, filter)
	hits := 0
	if result != nil {
		hits = len(result.Lexical) + len(result.Semantic) + len(result.Hybrid)
	}
	s.observer.ObserveSearch(string(mode), hits, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if req.Explain && s.enricher != nil {
		s.enricher.Enrich(ctx, result.Semantic)
		s.enricher.Enrich(ctx, result.Hybrid)
		if hit := explainedHit(result); hit != nil {
			s.enricher.AttachNeighbors(ctx, hit, explainNeighbors)
		}
	}
	return result, nil
}

// explainedHit is the hit whose context an explained search expands: the top
// semantic hit, else the top hybrid hit.
func explainedHit(result *domain.SearchResult) *domain.ChunkHit {
	if len(result.Semantic) > 0 {
		return &result.Semantic[0]
	}
	if len(result.Hybrid) > 0 {
		return &result.Hybrid[0]
	}
	return nil
}

func (s *SearchService) search(
	ctx context.Context,
	mode domain.RetrievalMode,
	query string,
	size, limit int,
	filter domain.VectorFilter,
) (*domain.SearchResult, error) {
	result := &domain.SearchResult{Mode: mode}

	switch mode {
	case domain.ModeLexical:
		hits, err := s.lexical.SearchDocuments(ctx, query, size)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
		result.Lexical = hits
		return result, nil

	case domain.ModeSemantic:
		vector, err := s.embedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		hits, err := s.vectors.Search(ctx, vector, limit, filter)
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
		result.Semantic = hits
		return result, nil

	case domain.ModeHybrid:
		vector, err := s.embedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		branch, err := s.hybrid(ctx, query, vector, size, limit, filter)
		if err != nil {
			return nil, err
		}
		result.Hybrid = branch.hits
		result.HybridFailOpen = branch.failOpen
		result.Degraded = branch.degraded
		return result, nil

	default:
		return s.searchAll(ctx, query, size, limit, filter)
	}
}

// searchAll runs the three branches concurrently over one query embedding.
// A lexical branch failure degrades the result; vector failures abort it.
func (s *SearchService) searchAll(
	ctx context.Context,
	query string,
	size, limit int,
	filter domain.VectorFilter,
) (*domain.SearchResult, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	result := &domain.SearchResult{Mode: domain.ModeAll}
	var mu sync.Mutex
	degrade := func(reason string) {
		mu.Lock()
		result.Degraded = append(result.Degraded, reason)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.lexical.SearchDocuments(gctx, query, size)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			s.logger.Warn("lexical_branch_degraded", "error", err)
			degrade("lexical: " + err.Error())
			return nil
		}
		result.Lexical = hits
		return nil
	})
	g.Go(func() error {
		hits, err := s.vectors.Search(gctx, vector, limit, filter)
		if err != nil {
			return fmt.Errorf("semantic search: %w", err)
		}
		result.Semantic = hits
		return nil
	})
	g.Go(func() error {
		branch, err := s.hybrid(gctx, query, vector, size, limit, filter)
		if err != nil {
			return err
		}
		result.Hybrid = branch.hits
		result.HybridFailOpen = branch.failOpen
		for _, reason := range branch.degraded {
			degrade(reason)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

type hybridBranch struct {
	hits       []domain.ChunkHit
	candidates []string
	failOpen   bool
	degraded   []string
}

// hybrid narrows semantic search to lexically matched laws. An empty or failed
// lexical step falls through to unrestricted semantic search.
func (s *SearchService) hybrid(
	ctx context.Context,
	query string,
	vector []float32,
	candidateSize, limit int,
	filter domain.VectorFilter,
) (hybridBranch, error) {
	var branch hybridBranch

	docs, err := s.lexical.SearchDocuments(ctx, query, candidateSize)
	candidates := candidateLawIDs(docs)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return branch, ctx.Err()
		}
		branch.failOpen = true
		branch.degraded = append(branch.degraded, "hybrid lexical prefilter: "+err.Error())
		s.observer.ObserveHybridFailOpen("lexical_error")
		s.logger.Warn("hybrid_fail_open", "reason", "lexical_error", "error", err)
	case len(candidates) == 0:
		branch.failOpen = true
		s.observer.ObserveHybridFailOpen("no_candidates")
		s.logger.Info("hybrid_fail_open", "reason", "no_candidates")
	default:
		branch.candidates = candidates
		filter.LawIDs = candidates
	}

	hits, err := s.vectors.Search(ctx, vector, limit, filter)
	if err != nil {
		return branch, fmt.Errorf("hybrid semantic search: %w", err)
	}
	branch.hits = hits
	return branch, nil
}

// Retrieve returns enriched, numbered evidence for the answerer.
func (s *SearchService) Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.Retrieval, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is required"))
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	candidateSize := req.CandidateSize
	if candidateSize <= 0 {
		candidateSize = max(minCandidateSize, 3*topK)
	}
	filter := domain.VectorFilter{LawID: strings.TrimSpace(req.FilterLaw)}

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	out := &domain.Retrieval{}
	var hits []domain.ChunkHit
	if req.Hybrid {
		branch, err := s.hybrid(ctx, query, vector, candidateSize, topK, filter)
		if err != nil {
			return nil, err
		}
		hits = branch.hits
		out.HybridFailOpen = branch.failOpen
		out.Degraded = branch.degraded
	} else {
		hits, err = s.vectors.Search(ctx, vector, topK, filter)
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
	}

	if s.enricher != nil {
		s.enricher.Enrich(ctx, hits)
	}
	out.Evidence = make([]domain.Evidence, 0, len(hits))
	for i, hit := range hits {
		trail := hit.Trail
		if trail == nil {
			trail = domain.UnknownTrail()
		}
		if hit.TrailError != "" {
			out.Degraded = append(out.Degraded, fmt.Sprintf("trail %s: %s", hit.ChunkID, hit.TrailError))
		}
		out.Evidence = append(out.Evidence, domain.Evidence{
			Index:   i + 1,
			ChunkID: hit.ChunkID,
			Score:   hit.Score,
			Payload: hit.Payload,
			Text:    hit.Text,
			Trail:   trail,
		})
	}
	return out, nil
}

func (s *SearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vector, nil
}

func candidateLawIDs(docs []domain.DocHit) []string {
	seen := make(map[string]struct{}, len(docs))
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.LawID == "" {
			continue
		}
		if _, ok := seen[doc.LawID]; ok {
			continue
		}
		seen[doc.LawID] = struct{}{}
		out = append(out, doc.LawID)
	}
	return out
}
