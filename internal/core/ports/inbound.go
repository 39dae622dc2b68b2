package ports

import (
	"context"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

// Searcher is the inbound contract for the retrieval orchestrator.
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
}

// Asker is the inbound contract for evidence-grounded question answering.
type Asker interface {
	Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error)
}

// LawIngestor loads, segments and indexes source documents.
type LawIngestor interface {
	IngestAll(ctx context.Context, force bool) ([]domain.IngestStats, error)
	IngestFile(ctx context.Context, name string, force bool) (*domain.IngestStats, error)
}

// LawCatalog is the read model over ingested laws.
type LawCatalog interface {
	List(ctx context.Context) ([]domain.LawRecord, error)
}
