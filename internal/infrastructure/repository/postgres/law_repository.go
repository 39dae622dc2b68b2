package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

// LawRepository is the registry of ingested laws.
type LawRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewLawRepository(db *sql.DB) *LawRepository {
	return &LawRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *LawRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api and cli startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025110401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS laws (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	law_type TEXT NOT NULL DEFAULT '',
	law_date TEXT NOT NULL DEFAULT '',
	source_path TEXT NOT NULL,
	content_sha256 TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	node_count INTEGER NOT NULL DEFAULT 0,
	ingested_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_laws_ingested_at ON laws(ingested_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *LawRepository) Upsert(ctx context.Context, record domain.LawRecord) error {
	if err := domain.ValidateLawID(record.Law.ID); err != nil {
		return err
	}
	ingestedAt := record.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO laws (
	id, title, law_type, law_date, source_path, content_sha256, chunk_count, node_count, ingested_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	law_type = EXCLUDED.law_type,
	law_date = EXCLUDED.law_date,
	source_path = EXCLUDED.source_path,
	content_sha256 = EXCLUDED.content_sha256,
	chunk_count = EXCLUDED.chunk_count,
	node_count = EXCLUDED.node_count,
	ingested_at = EXCLUDED.ingested_at,
	updated_at = EXCLUDED.updated_at
`,
		record.Law.ID, record.Law.Title, record.Law.Type, record.Law.Date, record.SourcePath,
		record.ContentSHA256, record.ChunkCount, record.NodeCount, ingestedAt, r.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert law: %w", err)
	}
	return nil
}

func (r *LawRepository) Get(ctx context.Context, lawID string) (*domain.LawRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, law_type, law_date, source_path, content_sha256, chunk_count, node_count, ingested_at
FROM laws
WHERE id = $1
`, lawID)

	rec, err := scanLaw(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get law", fmt.Errorf("law %s", lawID))
		}
		return nil, fmt.Errorf("scan law: %w", err)
	}
	return rec, nil
}

func (r *LawRepository) List(ctx context.Context) ([]domain.LawRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, law_type, law_date, source_path, content_sha256, chunk_count, node_count, ingested_at
FROM laws
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list laws: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LawRecord, 0)
	for rows.Next() {
		rec, err := scanLaw(rows)
		if err != nil {
			return nil, fmt.Errorf("scan law: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate laws: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLaw(row rowScanner) (*domain.LawRecord, error) {
	var rec domain.LawRecord
	err := row.Scan(
		&rec.Law.ID, &rec.Law.Title, &rec.Law.Type, &rec.Law.Date, &rec.SourcePath,
		&rec.ContentSHA256, &rec.ChunkCount, &rec.NodeCount, &rec.IngestedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
