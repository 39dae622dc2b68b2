package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

const defaultUpsertBatch = 256

// pointsAPI is the subset of the gRPC client used here.
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
}

type Client struct {
	api         pointsAPI
	closeFn     func() error
	collection  string
	upsertBatch int
	executor    *resilience.Executor
	logger      *slog.Logger

	ensureMu          sync.Mutex
	ensuredVectorSize int
}

type Options struct {
	APIKey             string
	UpsertBatch        int
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

// New connects to Qdrant over gRPC. rawURL is the REST address (e.g. http://localhost:6333);
// the gRPC port is the REST port plus one.
func New(rawURL, collection string, options Options) (*Client, error) {
	host, port, useTLS, err := grpcAddress(rawURL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: options.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	c := newClient(client, collection, options)
	c.closeFn = client.Close
	return c, nil
}

func newClient(api pointsAPI, collection string, options Options) *Client {
	batch := options.UpsertBatch
	if batch <= 0 {
		batch = defaultUpsertBatch
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:         api,
		collection:  collection,
		upsertBatch: batch,
		executor:    options.ResilienceExecutor,
		logger:      logger,
	}
}

func grpcAddress(rawURL string) (string, int, bool, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", 0, false, domain.WrapError(domain.ErrInvalidInput, "parse qdrant url", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if raw := parsed.Port(); raw != "" {
		httpPort, err := strconv.Atoi(raw)
		if err != nil {
			return "", 0, false, domain.WrapError(domain.ErrInvalidInput, "parse qdrant url", err)
		}
		port = httpPort + 1
	}
	return host, port, parsed.Scheme == "https", nil
}

func (c *Client) Close() error {
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

// Ping reports whether the server answers a health check. It does not retry.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.HealthCheck(ctx); err != nil {
		return domain.NewStoreError(domain.StoreQdrant, "ping", wrapTemporaryIfNeeded("qdrant ping", err))
	}
	return nil
}

// EnsureCollection creates the cosine collection and its law_id keyword index when missing.
func (c *Client) EnsureCollection(ctx context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant ensure collection", fmt.Errorf("vector size %d", vectorSize))
	}
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredVectorSize == vectorSize {
		return nil
	}

	err := c.executor.Execute(ctx, "qdrant.ensure_collection", func(ctx context.Context) error {
		exists, err := c.api.CollectionExists(ctx, c.collection)
		if err != nil {
			return fmt.Errorf("qdrant collection exists: %w", err)
		}
		if exists {
			return nil
		}
		c.logger.Info("qdrant_collection_create", "collection", c.collection, "vector_size", vectorSize)
		if err := c.api.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("qdrant create collection: %w", err)
		}
		if _, err := c.api.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: c.collection,
			FieldName:      payloadLawID,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		}); err != nil {
			return fmt.Errorf("qdrant create law_id index: %w", err)
		}
		return nil
	}, classifyQdrantError)
	if err != nil {
		return domain.NewStoreError(domain.StoreQdrant, "ensure collection", wrapTemporaryIfNeeded("qdrant ensure collection", err))
	}
	c.ensuredVectorSize = vectorSize
	return nil
}

// ReplaceLaw deletes every point of the law, then upserts the given chunks in batches.
// Chunks must carry their vectors.
func (c *Client) ReplaceLaw(ctx context.Context, lawID string, chunks []domain.Chunk) error {
	if err := domain.ValidateLawID(lawID); err != nil {
		return err
	}
	for _, ch := range chunks {
		if ch.Path.LawID != lawID {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant replace law", fmt.Errorf("chunk %s does not belong to %s", ch.ID, lawID))
		}
		if len(ch.Vector) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant replace law", fmt.Errorf("chunk %s has no vector", ch.ID))
		}
		if err := ch.Payload().Validate(); err != nil {
			return err
		}
	}
	if len(chunks) > 0 {
		if err := c.EnsureCollection(ctx, len(chunks[0].Vector)); err != nil {
			return err
		}
	}

	if err := c.DeleteLaw(ctx, lawID); err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += c.upsertBatch {
		batch := chunks[start:min(start+c.upsertBatch, len(chunks))]
		points := make([]*qdrant.PointStruct, 0, len(batch))
		for _, ch := range batch {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(PointID(c.collection, ch.ID)),
				Vectors: qdrant.NewVectors(ch.Vector...),
				Payload: payloadValues(ch.Payload()),
			})
		}
		err := c.executor.Execute(ctx, "qdrant.upsert", func(ctx context.Context) error {
			_, err := c.api.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: c.collection,
				Wait:           qdrant.PtrOf(true),
				Points:         points,
			})
			return err
		}, classifyQdrantError)
		if err != nil {
			return domain.NewStoreError(domain.StoreQdrant, "upsert", wrapTemporaryIfNeeded("qdrant upsert", err))
		}
	}
	return nil
}

// DeleteLaw removes every point whose payload law_id matches. A missing collection is a no-op.
func (c *Client) DeleteLaw(ctx context.Context, lawID string) error {
	err := c.executor.Execute(ctx, "qdrant.delete", func(ctx context.Context) error {
		exists, err := c.api.CollectionExists(ctx, c.collection)
		if err != nil || !exists {
			return err
		}
		_, err = c.api.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: c.collection,
			Wait:           qdrant.PtrOf(true),
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch(payloadLawID, lawID)},
			}),
		})
		return err
	}, classifyQdrantError)
	if err != nil {
		return domain.NewStoreError(domain.StoreQdrant, "delete law", wrapTemporaryIfNeeded("qdrant delete law", err))
	}
	return nil
}

// Search returns the nearest chunks to vector, restricted server-side by filter.
func (c *Client) Search(ctx context.Context, vector []float32, limit int, filter domain.VectorFilter) ([]domain.ChunkHit, error) {
	if len(vector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant search", fmt.Errorf("empty query vector"))
	}
	if limit <= 0 {
		return []domain.ChunkHit{}, nil
	}
	request := &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	points, err := resilience.Do(ctx, c.executor, "qdrant.search", func(ctx context.Context) ([]*qdrant.ScoredPoint, error) {
		return c.api.Query(ctx, request)
	}, classifyQdrantError)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreQdrant, "search", wrapTemporaryIfNeeded("qdrant search", err))
	}

	hits := make([]domain.ChunkHit, 0, len(points))
	for _, p := range points {
		payload := payloadFromValues(p.GetPayload())
		hits = append(hits, domain.ChunkHit{
			ChunkID: payload.ChunkID,
			Score:   float64(p.GetScore()),
			Payload: payload,
		})
	}
	return hits, nil
}
