package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createPostgresTable = `CREATE TABLE IF NOT EXISTS tua_storage (
	cache_key  TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres is an engine that persists payloads in a PostgreSQL table.
type Postgres struct {
	mu     sync.RWMutex
	pool   *pgxpool.Pool
	closed bool
}

var _ Engine = (*Postgres)(nil)

// ConnectPostgres opens a pool for dsn and ensures the table exists.
func ConnectPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing pool and ensures the table exists.
// The engine takes ownership of pool and closes it on Close.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, createPostgresTable); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Get retrieves a payload.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}

	var payload []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM tua_storage WHERE cache_key = $1`, key,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	return payload, nil
}

// Set upserts a payload.
func (p *Postgres) Set(ctx context.Context, key string, payload []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	if payload == nil {
		payload = []byte{}
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO tua_storage (cache_key, payload, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		key, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

// Remove deletes a payload. Deleting a missing row is not an error.
func (p *Postgres) Remove(ctx context.Context, key string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	if _, err := p.pool.Exec(ctx, `DELETE FROM tua_storage WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("postgres remove: %w", err)
	}
	return nil
}

// Clear deletes every row.
func (p *Postgres) Clear(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	if _, err := p.pool.Exec(ctx, `DELETE FROM tua_storage`); err != nil {
		return fmt.Errorf("postgres clear: %w", err)
	}
	return nil
}

// Keys returns every stored key.
func (p *Postgres) Keys(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}

	rows, err := p.pool.Query(ctx, `SELECT cache_key FROM tua_storage`)
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	return keys, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.pool.Close()
	return nil
}
