package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_hold.lua
var releaseHoldScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseHoldScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks connectivity for the readiness probe
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HoldKey names the soft hold for one position of a book
func HoldKey(bookID string, position int) string {
	return fmt.Sprintf("hold:%s:%d", bookID, position)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// AcquireHold takes a short-lived hold owned by owner.
// Returns false if someone else holds the key.
func (c *Client) AcquireHold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire hold %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseHold deletes the hold only if owner still holds it
func (c *Client) ReleaseHold(ctx context.Context, key, owner string) (bool, error) {
	result, err := c.releaseScript.Run(ctx, c.rdb, []string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("release hold script failed: %w", err)
	}
	return result == 1, nil
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, idempotencyKey(key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
