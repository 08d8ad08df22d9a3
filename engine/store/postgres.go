// Package store persists car ads in Postgres and answers keyword and
// nearest-neighbour queries over them with pgvector.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PoolConfig holds tunable parameters for the connection pool.
type PoolConfig struct {
	MaxConns int
	MinConns int
}

// Bootstrap creates the vector extension over a one-off connection. The pool
// cannot register pgvector types until the extension exists.
func Bootstrap(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("store: bootstrap: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("store: bootstrap: %w", err)
	}
	return nil
}

// Connect opens a pool with the pgvector types registered on every connection.
func Connect(ctx context.Context, dsn string, pc PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse config: %w", err)
	}
	config.MaxConns = 10
	if pc.MaxConns > 0 {
		config.MaxConns = int32(pc.MaxConns)
	}
	config.MinConns = 2
	if pc.MinConns > 0 {
		config.MinConns = int32(pc.MinConns)
	}
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the vector extension, the car_ads table and its
// cosine HNSW index. dims is fixed for the lifetime of the table.
func EnsureSchema(ctx context.Context, db DB, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS car_ads (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	year        INTEGER,
	price       INTEGER,
	mileage     INTEGER,
	image_url   TEXT,
	description TEXT,
	embedding   vector(%d),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, dims),
		`CREATE INDEX IF NOT EXISTS car_ads_embedding_idx ON car_ads USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(ctx, s); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}
