package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

// MetadataRepository is the server-side paper metadata cache.
// It implements ports.MetadataCache.
type MetadataRepository struct {
	db *sql.DB
}

func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *MetadataRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS paper_metadata (
	cite_key TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	authors TEXT NOT NULL DEFAULT '',
	year TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_paper_metadata_fetched_at ON paper_metadata(fetched_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Get returns the cached rows for the given keys. Unknown keys are absent
// from the result.
func (r *MetadataRepository) Get(ctx context.Context, citeKeys []string) (map[string]domain.PaperMetadata, error) {
	out := make(map[string]domain.PaperMetadata, len(citeKeys))
	if len(citeKeys) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(citeKeys))
	args := make([]any, len(citeKeys))
	for i, key := range citeKeys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = key
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT cite_key, title, authors, year, source, fetched_at
FROM paper_metadata
WHERE cite_key IN (`+strings.Join(placeholders, ",")+`)
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var meta domain.PaperMetadata
		if err := rows.Scan(&meta.CiteKey, &meta.Title, &meta.Authors, &meta.Year, &meta.Source, &meta.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		out[meta.CiteKey] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return out, nil
}

func (r *MetadataRepository) Put(ctx context.Context, meta domain.PaperMetadata) error {
	if meta.CiteKey == "" {
		return domain.WrapError(domain.ErrInvalidInput, "put metadata", fmt.Errorf("cite key is required"))
	}
	if meta.FetchedAt.IsZero() {
		meta.FetchedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO paper_metadata (cite_key, title, authors, year, source, fetched_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (cite_key) DO UPDATE
SET title = EXCLUDED.title, authors = EXCLUDED.authors, year = EXCLUDED.year,
	source = EXCLUDED.source, fetched_at = EXCLUDED.fetched_at
`, meta.CiteKey, meta.Title, meta.Authors, meta.Year, meta.Source, meta.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}
