package metadata

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bedatse/cf-web-scrapper-worker/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool used for page records.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore writes page records into Postgres.
type PostgresStore struct {
	pool  execCloser
	table string
}

// NewPostgresStore creates a Postgres-backed metadata store using the
// provided config.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("metadata.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool execCloser, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// UpsertPage inserts the page record or, when the URL already exists,
// overwrites storage_key, language, and page_crawled_at in place. The
// markdown and embedding timestamps belong to downstream writers and
// are deliberately absent from the update list.
func (s *PostgresStore) UpsertPage(
	ctx context.Context,
	url string,
	key scraper.StorageKey,
	language string,
	crawledAt time.Time,
) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("metadata store is not configured")
	}
	if url == "" {
		return fmt.Errorf("url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, storage_key, language, page_crawled_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (url) DO UPDATE SET
	storage_key = EXCLUDED.storage_key,
	language = EXCLUDED.language,
	page_crawled_at = EXCLUDED.page_crawled_at`, s.table)

	if _, err := s.pool.Exec(ctx, query, url, key.String(), language, crawledAt); err != nil {
		return fmt.Errorf("upsert page %s: %w", url, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
