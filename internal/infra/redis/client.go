package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the dead-letter pipeline.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func redriveLockKey(queue string) string {
	return fmt.Sprintf("redrive_lock:%s", queue)
}

// AcquireRedriveLock attempts to acquire the redrive lock for a queue, so
// only one redriver drains a queue's dead letters at a time.
func (c *Client) AcquireRedriveLock(ctx context.Context, queue string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, redriveLockKey(queue), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseRedriveLock releases the redrive lock for a queue.
func (c *Client) ReleaseRedriveLock(ctx context.Context, queue string) error {
	return c.rdb.Del(ctx, redriveLockKey(queue)).Err()
}

// RefreshRedriveLock extends the TTL of the redrive lock.
func (c *Client) RefreshRedriveLock(ctx context.Context, queue string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, redriveLockKey(queue), ttl).Err()
}
