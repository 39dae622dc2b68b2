package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

type loaderFake struct {
	docs map[string]domain.SourceDocument
	list []string
	err  error
}

func (f *loaderFake) List(context.Context) ([]string, error) {
	return f.list, f.err
}

func (f *loaderFake) Load(_ context.Context, name string) (domain.SourceDocument, error) {
	doc, ok := f.docs[name]
	if !ok {
		return domain.SourceDocument{}, domain.WrapError(domain.ErrNotFound, "load", fmt.Errorf("%s", name))
	}
	return doc, nil
}

// segmenterFake yields one article with n chunks.
type segmenterFake struct {
	chunks int
}

func (f *segmenterFake) Segment(doc domain.SourceDocument) (domain.Segmentation, error) {
	path := domain.LegalPath{LawID: doc.Law.ID, Article: "1"}
	seg := domain.Segmentation{
		Law: doc.Law,
		Nodes: []domain.StructuralNode{
			{ID: doc.Law.ID, Kind: domain.KindLaw, Label: doc.Law.Label()},
			{ID: path.NodeID(), Kind: domain.KindArticle, ParentID: doc.Law.ID, Number: "1", Label: "Art. 1º"},
		},
	}
	for i := 0; i < f.chunks; i++ {
		seg.Chunks = append(seg.Chunks, domain.Chunk{
			ID: domain.ChunkID(path, i), Path: path, Seq: i, Text: fmt.Sprintf("texto %d", i), Start: i * 10, End: i*10 + 9,
		})
	}
	return seg, nil
}

type registryFake struct {
	records map[string]domain.LawRecord
	getErr  error
}

func (f *registryFake) Get(_ context.Context, lawID string) (*domain.LawRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[lawID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get law", errors.New(lawID))
	}
	return &rec, nil
}

func (f *registryFake) Upsert(_ context.Context, record domain.LawRecord) error {
	if f.records == nil {
		f.records = map[string]domain.LawRecord{}
	}
	f.records[record.Law.ID] = record
	return nil
}

func (f *registryFake) List(context.Context) ([]domain.LawRecord, error) {
	out := make([]domain.LawRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

type publisherFake struct {
	published []string
	err       error
}

func (f *publisherFake) PublishLawIngested(_ context.Context, lawID string) error {
	f.published = append(f.published, lawID)
	return f.err
}

type ingestFixture struct {
	svc       *IngestService
	loader    *loaderFake
	embedder  *embedderFake
	lexical   *lexicalFake
	vectors   *vectorFake
	graph     *graphFake
	registry  *registryFake
	publisher *publisherFake
}

func newIngestFixture(chunks int) *ingestFixture {
	f := &ingestFixture{
		loader: &loaderFake{
			list: []string{"lei_9784.html", "lei_6437.pdf"},
			docs: map[string]domain.SourceDocument{
				"lei_9784.html": {Law: domain.Law{ID: "L9784", Title: "Lei 9.784/1999"}, Text: "Art. 1º Esta Lei...", SourcePath: "lei_9784.html"},
				"lei_6437.pdf":  {Law: domain.Law{ID: "L6437", Title: "Lei 6.437/1977"}, Text: "Art. 1º As infrações...", SourcePath: "lei_6437.pdf"},
			},
		},
		embedder:  &embedderFake{},
		lexical:   &lexicalFake{},
		vectors:   &vectorFake{},
		graph:     &graphFake{},
		registry:  &registryFake{},
		publisher: &publisherFake{},
	}
	f.svc = NewIngestService(f.loader, &segmenterFake{chunks: chunks}, f.embedder, f.lexical, f.vectors, f.graph, IngestOptions{
		Registry:             f.registry,
		Publisher:            f.publisher,
		EmbedBatch:           2,
		SegmenterFingerprint: "min=50 max=1500",
	})
	return f
}

func TestIngestFileWritesAllStoresAndRegistry(t *testing.T) {
	f := newIngestFixture(5)

	stats, err := f.svc.IngestFile(context.Background(), "lei_9784.html", false)
	require.NoError(t, err)
	assert.Equal(t, "L9784", stats.LawID)
	assert.Equal(t, 5, stats.Chunks)
	assert.Equal(t, 2, stats.Nodes)
	assert.False(t, stats.Skipped)

	assert.Len(t, f.embedder.batches, 3, "5 chunks in batches of 2")
	require.Len(t, f.lexical.indexed, 1)
	chunks := f.vectors.replaced["L9784"]
	require.Len(t, chunks, 5)
	for _, ch := range chunks {
		assert.NotEmpty(t, ch.Vector)
	}
	require.Len(t, f.graph.written, 1)
	rec := f.registry.records["L9784"]
	assert.Equal(t, contentChecksum(f.loader.docs["lei_9784.html"], "min=50 max=1500"), rec.ContentSHA256)
	assert.Equal(t, 5, rec.ChunkCount)
	assert.Equal(t, []string{"L9784"}, f.publisher.published)
}

func TestIngestFileSkipsUnchangedContentUnlessForced(t *testing.T) {
	f := newIngestFixture(1)
	_, err := f.svc.IngestFile(context.Background(), "lei_9784.html", false)
	require.NoError(t, err)

	stats, err := f.svc.IngestFile(context.Background(), "lei_9784.html", false)
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
	assert.Len(t, f.graph.written, 1)

	stats, err = f.svc.IngestFile(context.Background(), "lei_9784.html", true)
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Len(t, f.graph.written, 2)
}

func TestIngestFileReingestsWhenMetadataOrChunkingChanges(t *testing.T) {
	f := newIngestFixture(1)
	_, err := f.svc.IngestFile(context.Background(), "lei_9784.html", false)
	require.NoError(t, err)

	doc := f.loader.docs["lei_9784.html"]
	doc.Law.Title = "Lei nº 9.784, de 29 de janeiro de 1999"
	f.loader.docs["lei_9784.html"] = doc
	stats, err := f.svc.IngestFile(context.Background(), "lei_9784.html", false)
	require.NoError(t, err)
	assert.False(t, stats.Skipped, "title change")
	assert.Len(t, f.graph.written, 2)

	f.svc.fingerprint = "min=50 max=1200"
	stats, err = f.svc.IngestFile(context.Background(), "lei_9784.html", false)
	require.NoError(t, err)
	assert.False(t, stats.Skipped, "segmenter change")
	assert.Len(t, f.graph.written, 3)

	stats, err = f.svc.IngestFile(context.Background(), "lei_9784.html", false)
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
}

func TestIngestFileStopsOnStoreFailure(t *testing.T) {
	f := newIngestFixture(2)
	f.vectors.err = domain.NewStoreError(domain.StoreQdrant, "upsert", errors.New("unavailable"))

	_, err := f.svc.IngestFile(context.Background(), "lei_9784.html", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetrieval)
	assert.Empty(t, f.graph.written)
	assert.Empty(t, f.registry.records)
	assert.Empty(t, f.publisher.published)
}

func TestIngestFilePublishFailureDoesNotFailIngestion(t *testing.T) {
	f := newIngestFixture(1)
	f.publisher.err = errors.New("nats down")

	_, err := f.svc.IngestFile(context.Background(), "lei_9784.html", false)
	require.NoError(t, err)
	assert.Contains(t, f.registry.records, "L9784")
}

func TestIngestFileRejectsInvalidLawID(t *testing.T) {
	f := newIngestFixture(1)
	f.loader.docs["bad.txt"] = domain.SourceDocument{Law: domain.Law{ID: "lei 1"}, Text: "x"}

	_, err := f.svc.IngestFile(context.Background(), "bad.txt", false)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngestAllContinuesPastFailures(t *testing.T) {
	f := newIngestFixture(1)
	f.loader.list = append(f.loader.list, "missing.txt")

	stats, err := f.svc.IngestAll(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "missing.txt")
	assert.Len(t, stats, 2)
}

func TestIngestAllWithoutSources(t *testing.T) {
	f := newIngestFixture(1)
	f.loader.list = nil

	_, err := f.svc.IngestAll(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLawCatalogRequiresRegistry(t *testing.T) {
	_, err := NewLawCatalogService(nil).List(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	registry := &registryFake{records: map[string]domain.LawRecord{"L1": {Law: domain.Law{ID: "L1"}}}}
	records, err := NewLawCatalogService(registry).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
