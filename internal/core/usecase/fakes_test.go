package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

type lexicalFake struct {
	mu      sync.Mutex
	hits    []domain.DocHit
	err     error
	calls   int
	indexed []domain.SourceDocument
}

func (f *lexicalFake) IndexLaw(_ context.Context, doc domain.SourceDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, doc)
	return f.err
}

func (f *lexicalFake) SearchDocuments(context.Context, string, int) ([]domain.DocHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// vectorFake returns hits whose law is allowed by the filter, like the server-side filter does.
type vectorFake struct {
	mu       sync.Mutex
	hits     []domain.ChunkHit
	err      error
	filters  []domain.VectorFilter
	replaced map[string][]domain.Chunk
}

func (f *vectorFake) ReplaceLaw(_ context.Context, lawID string, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaced == nil {
		f.replaced = map[string][]domain.Chunk{}
	}
	f.replaced[lawID] = chunks
	return f.err
}

func (f *vectorFake) Search(_ context.Context, _ []float32, limit int, filter domain.VectorFilter) ([]domain.ChunkHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.ChunkHit, 0, len(f.hits))
	for _, hit := range f.hits {
		if !allowed(filter, hit.Payload.LawID) {
			continue
		}
		out = append(out, hit)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func allowed(filter domain.VectorFilter, lawID string) bool {
	if filter.LawID != "" && filter.LawID != lawID {
		return false
	}
	if len(filter.LawIDs) == 0 {
		return true
	}
	for _, id := range filter.LawIDs {
		if id == lawID {
			return true
		}
	}
	return false
}

type embedderFake struct {
	mu         sync.Mutex
	queryCalls int
	batches    [][]string
	err        error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type graphFake struct {
	mu       sync.Mutex
	contexts  map[string]*domain.ChunkContext
	errs      map[string]error
	neighbors map[string][]domain.Neighbor
	neighErr  error
	written   []domain.Segmentation
	writeErr  error
}

func (f *graphFake) ReplaceLaw(_ context.Context, seg domain.Segmentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, seg)
	return f.writeErr
}

func (f *graphFake) ChunkContext(_ context.Context, chunkID string) (*domain.ChunkContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[chunkID]; ok {
		return nil, err
	}
	chunkCtx, ok := f.contexts[chunkID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "chunk context", errors.New(chunkID))
	}
	copied := *chunkCtx
	return &copied, nil
}

func (f *graphFake) Neighbors(_ context.Context, chunkID string, limit int) ([]domain.Neighbor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.neighErr != nil {
		return nil, f.neighErr
	}
	out := f.neighbors[chunkID]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type generatorFake struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	params  []domain.GenerationParams
}

func (f *generatorFake) Generate(_ context.Context, _ domain.Prompt, params domain.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)
	if err, ok := f.errs[params.Model]; ok {
		return "", err
	}
	return f.replies[params.Model], nil
}

type observerFake struct {
	mu         sync.Mutex
	failOpen   []string
	enrichment []string
	answers    []string
	ingests    int
}

func (o *observerFake) ObserveSearch(string, int, time.Duration, error) {}

func (o *observerFake) ObserveHybridFailOpen(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failOpen = append(o.failOpen, reason)
}

func (o *observerFake) ObserveEnrichmentFailure(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enrichment = append(o.enrichment, kind)
}

func (o *observerFake) ObserveGeneration(string, string, time.Duration, error) {}

func (o *observerFake) ObserveAnswer(_ string, strategy string, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answers = append(o.answers, strategy)
}

func (o *observerFake) ObserveIngest(int, time.Duration, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ingests++
}

func chunkHit(lawID, article string, seq int, score float64) domain.ChunkHit {
	path := domain.LegalPath{LawID: lawID, Article: article}
	id := domain.ChunkID(path, seq)
	return domain.ChunkHit{
		ChunkID: id,
		Score:   score,
		Payload: domain.ChunkPayload{
			LawID:       lawID,
			Article:     article,
			ChunkID:     id,
			StartOffset: 0,
			EndOffset:   10,
		},
	}
}

func lawTrail(lawID, title, article string) domain.Trail {
	return domain.Trail{Nodes: []domain.TrailNode{
		{Kind: domain.KindLaw, ID: lawID, Label: title},
		{Kind: domain.KindArticle, ID: lawID + ":Art" + article, Label: domain.ArticleLabel(article)},
	}}
}
