package ports

import (
	"context"
	"io"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

// LexicalIndex is the full-text store holding one document per law.
type LexicalIndex interface {
	IndexLaw(ctx context.Context, doc domain.SourceDocument) error
	SearchDocuments(ctx context.Context, query string, size int) ([]domain.DocHit, error)
}

// VectorIndex stores chunk embeddings with their payload.
type VectorIndex interface {
	ReplaceLaw(ctx context.Context, lawID string, chunks []domain.Chunk) error
	Search(ctx context.Context, vector []float32, limit int, filter domain.VectorFilter) ([]domain.ChunkHit, error)
}

// GraphStore holds the legal hierarchy and answers ancestor and sibling lookups.
type GraphStore interface {
	ReplaceLaw(ctx context.Context, seg domain.Segmentation) error
	ChunkContext(ctx context.Context, chunkID string) (*domain.ChunkContext, error)
	Neighbors(ctx context.Context, chunkID string, limit int) ([]domain.Neighbor, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a completion for a prompt. A blocked or empty completion is an error.
type Generator interface {
	Generate(ctx context.Context, prompt domain.Prompt, params domain.GenerationParams) (string, error)
}

// Segmenter partitions a law into structural nodes and chunks.
type Segmenter interface {
	Segment(doc domain.SourceDocument) (domain.Segmentation, error)
}

// SourceLoader enumerates and reads source documents.
type SourceLoader interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) (domain.SourceDocument, error)
}

// ObjectStorage exposes raw source files.
type ObjectStorage interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// LawRegistry records ingested laws.
type LawRegistry interface {
	Get(ctx context.Context, lawID string) (*domain.LawRecord, error)
	Upsert(ctx context.Context, record domain.LawRecord) error
	List(ctx context.Context) ([]domain.LawRecord, error)
}

// EventPublisher announces completed ingestions.
type EventPublisher interface {
	PublishLawIngested(ctx context.Context, lawID string) error
}
