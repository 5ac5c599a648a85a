package cache

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool used for the cache table.
type PostgresConfig struct {
	DSN      string
	Table    string
	MaxConns int32
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// PostgresBackend stores the cache in a two-column table keyed by tweet ID.
type PostgresBackend struct {
	pool  pgxPool
	table string
}

// NewPostgresBackend connects to Postgres and ensures the cache table exists.
func NewPostgresBackend(ctx context.Context, cfg PostgresConfig) (*PostgresBackend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	backend, err := NewPostgresBackendWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := backend.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return backend, nil
}

// NewPostgresBackendWithPool constructs a backend from an existing pool.
func NewPostgresBackendWithPool(pool pgxPool, table string) (*PostgresBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "tweet_text_cache"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresBackend{pool: pool, table: table}, nil
}

// EnsureSchema creates the cache table when missing.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		tweet_id TEXT PRIMARY KEY,
		text TEXT NOT NULL
	)`, b.table)
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

// Load implements Backend.
func (b *PostgresBackend) Load(ctx context.Context) (map[string]string, error) {
	rows, err := b.pool.Query(ctx, fmt.Sprintf("SELECT tweet_id, text FROM %s", b.table))
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		if id == "" {
			continue
		}
		entries[id] = text
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache rows: %w", err)
	}
	return entries, nil
}

// Save implements Backend by sending every upsert as one batch inside a
// transaction.
func (b *PostgresBackend) Save(ctx context.Context, entries map[string]string) (err error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cache save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`INSERT INTO %s (tweet_id, text) VALUES ($1, $2)
		ON CONFLICT (tweet_id) DO UPDATE SET text = EXCLUDED.text`, b.table)

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > 0 {
		batch := &pgx.Batch{}
		for _, id := range ids {
			batch.Queue(query, id, entries[id])
		}
		if err := sendUpserts(tx.SendBatch(ctx, batch), ids); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cache save: %w", err)
	}
	return nil
}

// sendUpserts reads one result per queued upsert and closes br before the
// transaction is finished.
func sendUpserts(br pgx.BatchResults, ids []string) error {
	for _, id := range ids {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert cache row %s: %w", id, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close cache upsert batch: %w", err)
	}
	return nil
}

// Close releases the pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}
