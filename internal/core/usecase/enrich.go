package usecase

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/core/ports"
)

const (
	defaultEnrichConcurrency = 4
	explainNeighbors         = 3
)

// Enricher attaches citation trails to chunk hits. Each hit is looked up
// independently and a failed lookup only degrades that hit.
type Enricher struct {
	graph       ports.GraphStore
	concurrency int
	observer    Observer
	logger      *slog.Logger
}

type EnricherOptions struct {
	Concurrency int
	Observer    Observer
	Logger      *slog.Logger
}

func NewEnricher(graph ports.GraphStore, options EnricherOptions) *Enricher {
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = defaultEnrichConcurrency
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		graph:       graph,
		concurrency: concurrency,
		observer:    observerOrNop(options.Observer),
		logger:      logger,
	}
}

// Trail returns the validated ancestor trail and stored text of one chunk.
// A chunk missing from the graph or without a complete chain is ErrDataIntegrity.
func (e *Enricher) Trail(ctx context.Context, chunkID string) (*domain.ChunkContext, error) {
	if _, _, err := domain.ParseChunkID(chunkID); err != nil {
		return nil, err
	}
	chunkCtx, err := e.graph.ChunkContext(ctx, chunkID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrDataIntegrity, "chunk trail", err)
		}
		return nil, err
	}
	if err := chunkCtx.Trail.Validate(); err != nil {
		return nil, err
	}
	return chunkCtx, nil
}

// Enrich fills Trail and Text on every hit in place. It never fails as a whole.
func (e *Enricher) Enrich(ctx context.Context, hits []domain.ChunkHit) {
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range hits {
		g.Go(func() error {
			e.enrichOne(ctx, &hits[i])
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Enricher) enrichOne(ctx context.Context, hit *domain.ChunkHit) {
	chunkCtx, err := e.Trail(ctx, hit.ChunkID)
	if err != nil {
		kind := failureKind(err)
		hit.Trail = domain.UnknownTrail()
		hit.TrailError = err.Error()
		e.observer.ObserveEnrichmentFailure(kind)
		e.logger.Warn("enrichment_degraded",
			"chunk_id", hit.ChunkID,
			"kind", kind,
			"error", err,
		)
		return
	}
	trail := chunkCtx.Trail
	hit.Trail = &trail
	if hit.Text == "" {
		hit.Text = chunkCtx.Text
	}
}

// AttachNeighbors fills hit.Neighbors with other chunks of the same article.
// A failed lookup leaves the hit without neighbors.
func (e *Enricher) AttachNeighbors(ctx context.Context, hit *domain.ChunkHit, limit int) {
	neighbors, err := e.graph.Neighbors(ctx, hit.ChunkID, limit)
	if err != nil {
		kind := failureKind(err)
		e.observer.ObserveEnrichmentFailure(kind)
		e.logger.Warn("neighbors_unavailable",
			"chunk_id", hit.ChunkID,
			"kind", kind,
			"error", err,
		)
		return
	}
	hit.Neighbors = neighbors
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "retrieval"
	}
}
