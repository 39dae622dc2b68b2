package neo4j

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

var structuralKinds = []domain.NodeKind{domain.KindLaw, domain.KindArticle, domain.KindParagraph, domain.KindInciso}

const deleteSubtreeQuery = `
MATCH (l:Law {id: $law_id})
OPTIONAL MATCH (l)-[:HAS_ARTICLE|HAS_PARAGRAPH|HAS_INCISO|HAS_CHUNK*]->(n)
WITH l, collect(DISTINCT n) AS below
FOREACH (x IN below | DETACH DELETE x)
DETACH DELETE l`

const upsertLawQuery = `
MERGE (l:Law {id: $law_id})
SET l.law_id = $law_id, l.title = $title, l.type = $type, l.date = $date, l.label = $label`

const chunkContextQuery = `
MATCH (c:Chunk {id: $chunk_id})
OPTIONAL MATCH path = (:Law)-[:HAS_ARTICLE|HAS_PARAGRAPH|HAS_INCISO|HAS_CHUNK*]->(c)
RETURN c.text AS text,
       [n IN coalesce(nodes(path), []) WHERE NOT n:Chunk | {kind: head(labels(n)), id: n.id, label: n.label}] AS trail
LIMIT 1`

// neighborsQuery finds other chunks below the article that holds the chunk,
// whatever paragraph or inciso they sit under.
const neighborsQuery = `
MATCH (a:Article)-[:HAS_PARAGRAPH|HAS_INCISO|HAS_CHUNK*1..3]->(c:Chunk {id: $chunk_id})
MATCH (a)-[:HAS_PARAGRAPH|HAS_INCISO|HAS_CHUNK*1..3]->(o:Chunk)
WHERE o.id <> $chunk_id
RETURN DISTINCT o.id AS chunk_id, o.text AS text, o.start AS start
ORDER BY start
LIMIT $limit`

type Store struct {
	driver   neo4j.DriverWithContext
	database string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	Database           string
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

func New(uri, user, password string, options Options) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		driver:   driver,
		database: options.Database,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return domain.NewStoreError(domain.StoreNeo4j, "ping", wrapTemporaryIfNeeded("neo4j ping", err))
	}
	return nil
}

// EnsureSchema creates one uniqueness constraint on id per node label.
func (s *Store) EnsureSchema(ctx context.Context) error {
	labels := append([]domain.NodeKind{domain.KindChunk}, structuralKinds...)
	for _, kind := range labels {
		query := fmt.Sprintf("CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", kind)
		err := s.executor.Execute(ctx, "neo4j.ensure_schema", func(ctx context.Context) error {
			_, err := neo4j.ExecuteQuery(ctx, s.driver, query, nil, neo4j.EagerResultTransformer, s.queryOptions(false)...)
			return err
		}, classifyNeo4jError)
		if err != nil {
			return domain.NewStoreError(domain.StoreNeo4j, "ensure schema", wrapTemporaryIfNeeded("neo4j ensure schema", err))
		}
	}
	return nil
}

// ReplaceLaw removes the law's subtree and writes the new hierarchy and chunks in one transaction.
func (s *Store) ReplaceLaw(ctx context.Context, seg domain.Segmentation) error {
	if err := domain.ValidateLawID(seg.Law.ID); err != nil {
		return err
	}
	statements, err := buildReplaceStatements(seg)
	if err != nil {
		return err
	}

	err = s.executor.Execute(ctx, "neo4j.replace_law", func(ctx context.Context) error {
		session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			for _, st := range statements {
				result, err := tx.Run(ctx, st.query, st.params)
				if err != nil {
					return nil, err
				}
				if _, err := result.Consume(ctx); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		return err
	}, classifyNeo4jError)
	if err != nil {
		return domain.NewStoreError(domain.StoreNeo4j, "replace law", wrapTemporaryIfNeeded("neo4j replace law", err))
	}
	s.logger.Debug("neo4j_law_replaced", "law_id", seg.Law.ID, "nodes", len(seg.Nodes), "chunks", len(seg.Chunks))
	return nil
}

// ChunkContext returns the root-first trail of a chunk and its stored text.
// An unknown chunk id is ErrNotFound; a chunk without ancestors yields an empty trail.
func (s *Store) ChunkContext(ctx context.Context, chunkID string) (*domain.ChunkContext, error) {
	result, err := resilience.Do(ctx, s.executor, "neo4j.chunk_context", func(ctx context.Context) (*neo4j.EagerResult, error) {
		return neo4j.ExecuteQuery(ctx, s.driver, chunkContextQuery, map[string]any{"chunk_id": chunkID}, neo4j.EagerResultTransformer, s.queryOptions(true)...)
	}, classifyNeo4jError)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreNeo4j, "chunk context", wrapTemporaryIfNeeded("neo4j chunk context", err))
	}
	if len(result.Records) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "neo4j chunk context", fmt.Errorf("chunk %s", chunkID))
	}
	record := result.Records[0]
	text, _ := record.Get("text")
	trail, _ := record.Get("trail")
	return contextFromRecord(text, trail)
}

// Neighbors returns up to limit chunks sharing the article of chunkID, in text order.
// A chunk attached directly to the law has no neighbors.
func (s *Store) Neighbors(ctx context.Context, chunkID string, limit int) ([]domain.Neighbor, error) {
	if limit <= 0 {
		return []domain.Neighbor{}, nil
	}
	result, err := resilience.Do(ctx, s.executor, "neo4j.neighbors", func(ctx context.Context) (*neo4j.EagerResult, error) {
		params := map[string]any{"chunk_id": chunkID, "limit": int64(limit)}
		return neo4j.ExecuteQuery(ctx, s.driver, neighborsQuery, params, neo4j.EagerResultTransformer, s.queryOptions(true)...)
	}, classifyNeo4jError)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreNeo4j, "neighbors", wrapTemporaryIfNeeded("neo4j neighbors", err))
	}
	out := make([]domain.Neighbor, 0, len(result.Records))
	for _, record := range result.Records {
		id, _ := record.Get("chunk_id")
		text, _ := record.Get("text")
		neighbor, err := neighborFromValues(id, text)
		if err != nil {
			return nil, err
		}
		out = append(out, neighbor)
	}
	return out, nil
}

func (s *Store) queryOptions(read bool) []neo4j.ExecuteQueryConfigurationOption {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if s.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	}
	if read {
		opts = append(opts, neo4j.ExecuteQueryWithReadersRouting())
	}
	return opts
}
