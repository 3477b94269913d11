// Package repository provides the Postgres access layer for sites and analytics records.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig sizes the Postgres pool. Zero fields take defaults. The hit
// path only reads sites on a cache miss; most connections serve the record
// worker's batch inserts and the counter flusher.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxConns <= 0 {
		p.MaxConns = 10
	}
	if p.MinConns <= 0 {
		p.MinConns = 2
	}
	if p.MinConns > p.MaxConns {
		p.MinConns = p.MaxConns
	}
	return p
}

// Repository owns the pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New connects with the default pool.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	return NewWithPool(ctx, databaseURL, PoolConfig{})
}

// NewWithPool connects to databaseURL and verifies the connection.
func NewWithPool(ctx context.Context, databaseURL string, pool PoolConfig) (*Repository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool = pool.withDefaults()
	config.MaxConns = pool.MaxConns
	config.MinConns = pool.MinConns
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: p}, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying pool for migrations and test setup.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}
