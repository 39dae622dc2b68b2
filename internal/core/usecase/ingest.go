package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/core/ports"
)

const defaultEmbedBatch = 64

// IngestService segments source laws and writes them to the three stores.
type IngestService struct {
	loader      ports.SourceLoader
	segmenter   ports.Segmenter
	embedder    ports.Embedder
	lexical     ports.LexicalIndex
	vectors     ports.VectorIndex
	graph       ports.GraphStore
	registry    ports.LawRegistry
	publisher   ports.EventPublisher
	embedBatch  int
	fingerprint string
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
}

// IngestOptions carries optional collaborators. A nil Registry disables
// unchanged-content skipping and a nil Publisher disables events.
// SegmenterFingerprint is folded into the content checksum so that changing
// chunking options re-ingests every law.
type IngestOptions struct {
	Registry             ports.LawRegistry
	Publisher            ports.EventPublisher
	EmbedBatch           int
	SegmenterFingerprint string
	Observer             Observer
	Logger               *slog.Logger
}

func NewIngestService(
	loader ports.SourceLoader,
	segmenter ports.Segmenter,
	embedder ports.Embedder,
	lexical ports.LexicalIndex,
	vectors ports.VectorIndex,
	graph ports.GraphStore,
	options IngestOptions,
) *IngestService {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := options.EmbedBatch
	if batch <= 0 {
		batch = defaultEmbedBatch
	}
	return &IngestService{
		loader:      loader,
		segmenter:   segmenter,
		embedder:    embedder,
		lexical:     lexical,
		vectors:     vectors,
		graph:       graph,
		registry:    options.Registry,
		publisher:   options.Publisher,
		embedBatch:  batch,
		fingerprint: options.SegmenterFingerprint,
		observer:    observerOrNop(options.Observer),
		logger:      logger,
		now:         time.Now,
	}
}

// IngestAll ingests every source. A failing law does not stop the others;
// the joined error lists each failure.
func (s *IngestService) IngestAll(ctx context.Context, force bool) ([]domain.IngestStats, error) {
	names, err := s.loader.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	if len(names) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "ingest all", errors.New("no source documents found"))
	}

	stats := make([]domain.IngestStats, 0, len(names))
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		st, err := s.IngestFile(ctx, name, force)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		stats = append(stats, *st)
	}
	return stats, errors.Join(errs...)
}

func (s *IngestService) IngestFile(ctx context.Context, name string, force bool) (*domain.IngestStats, error) {
	start := s.now()
	stats, err := s.ingest(ctx, name, force, start)
	chunks := 0
	skipped := false
	if stats != nil {
		chunks = stats.Chunks
		skipped = stats.Skipped
	}
	s.observer.ObserveIngest(chunks, s.now().Sub(start), skipped, err)
	if err != nil {
		s.logger.Error("law_ingest_failed", "source", name, "error", err)
		return nil, err
	}
	return stats, nil
}

func (s *IngestService) ingest(ctx context.Context, name string, force bool, start time.Time) (*domain.IngestStats, error) {
	doc, err := s.loader.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	if err := domain.ValidateLawID(doc.Law.ID); err != nil {
		return nil, err
	}
	checksum := contentChecksum(doc, s.fingerprint)

	if !force {
		unchanged, err := s.unchanged(ctx, doc.Law.ID, checksum)
		if err != nil {
			return nil, err
		}
		if unchanged {
			s.logger.Info("law_unchanged", "law_id", doc.Law.ID, "source", name)
			return &domain.IngestStats{LawID: doc.Law.ID, Skipped: true, Duration: s.now().Sub(start)}, nil
		}
	}

	seg, err := s.segmenter.Segment(doc)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", doc.Law.ID, err)
	}
	if err := s.embed(ctx, seg.Chunks); err != nil {
		return nil, err
	}

	if err := s.lexical.IndexLaw(ctx, doc); err != nil {
		return nil, fmt.Errorf("index document: %w", err)
	}
	if err := s.vectors.ReplaceLaw(ctx, doc.Law.ID, seg.Chunks); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}
	if err := s.graph.ReplaceLaw(ctx, seg); err != nil {
		return nil, fmt.Errorf("write hierarchy: %w", err)
	}

	stats := &domain.IngestStats{
		LawID:    doc.Law.ID,
		Nodes:    len(seg.Nodes),
		Chunks:   len(seg.Chunks),
		Duration: s.now().Sub(start),
	}
	if s.registry != nil {
		record := domain.LawRecord{
			Law:           doc.Law,
			SourcePath:    doc.SourcePath,
			ContentSHA256: checksum,
			ChunkCount:    stats.Chunks,
			NodeCount:     stats.Nodes,
			IngestedAt:    s.now().UTC(),
		}
		if err := s.registry.Upsert(ctx, record); err != nil {
			return nil, fmt.Errorf("record ingestion: %w", err)
		}
	}
	if s.publisher != nil {
		// stores are already consistent, a lost event only delays consumers
		if err := s.publisher.PublishLawIngested(ctx, doc.Law.ID); err != nil {
			s.logger.Warn("law_ingested_publish_failed", "law_id", doc.Law.ID, "error", err)
		}
	}

	s.logger.Info("law_ingested",
		"law_id", doc.Law.ID,
		"nodes", stats.Nodes,
		"chunks", stats.Chunks,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

func (s *IngestService) unchanged(ctx context.Context, lawID, checksum string) (bool, error) {
	if s.registry == nil {
		return false, nil
	}
	record, err := s.registry.Get(ctx, lawID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup registry: %w", err)
	}
	return record.ContentSHA256 == checksum, nil
}

// embed fills Vector on every chunk, batching calls to the embedder.
func (s *IngestService) embed(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += s.embedBatch {
		batch := chunks[start:min(start+s.embedBatch, len(chunks))]
		texts := make([]string, 0, len(batch))
		for _, ch := range batch {
			texts = append(texts, ch.Text)
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return domain.WrapError(
				domain.ErrDataIntegrity,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)),
			)
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}
	}
	return nil
}

// contentChecksum covers everything the stored law depends on: the text, the
// metadata written to the stores and the segmenter configuration.
func contentChecksum(doc domain.SourceDocument, fingerprint string) string {
	h := sha256.New()
	for _, part := range []string{fingerprint, doc.Law.Title, doc.Law.Type, doc.Law.Date, doc.Text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LawCatalogService lists ingested laws from the registry.
type LawCatalogService struct {
	registry ports.LawRegistry
}

func NewLawCatalogService(registry ports.LawRegistry) *LawCatalogService {
	return &LawCatalogService{registry: registry}
}

func (s *LawCatalogService) List(ctx context.Context) ([]domain.LawRecord, error) {
	if s.registry == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "list laws", errors.New("law registry is not configured (set POSTGRES_DSN)"))
	}
	records, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list laws: %w", err)
	}
	return records, nil
}
