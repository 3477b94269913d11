// Package cache provides the Redis access layer: site cache, counters and rate limits.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PoolConfig sizes the Redis connection pool. Zero fields take defaults.
// Every recorded hit costs a rate limit check, a site lookup, counter
// increments and a stream append, so the pool is larger than a typical
// API's.
type PoolConfig struct {
	Size         int
	MinIdleConns int
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.Size <= 0 {
		p.Size = 20
	}
	if p.MinIdleConns <= 0 {
		p.MinIdleConns = 4
	}
	if p.MinIdleConns > p.Size {
		p.MinIdleConns = p.Size
	}
	return p
}

// Cache wraps the Redis client shared by the hit path and the workers.
type Cache struct {
	client *redis.Client
}

// New connects with the default pool.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	return NewWithPool(ctx, redisURL, PoolConfig{})
}

// NewWithPool connects to redisURL and verifies the connection.
func NewWithPool(ctx context.Context, redisURL string, pool PoolConfig) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	pool = pool.withDefaults()
	opt.PoolSize = pool.Size
	opt.MinIdleConns = pool.MinIdleConns
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing client. Tests use it with a dedicated DB.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying client for the stream publisher and worker.
func (c *Cache) Client() *redis.Client {
	return c.client
}
