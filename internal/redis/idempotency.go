package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrKeyExists   = errors.New("idempotency key already exists")
	ErrKeyNotFound = errors.New("idempotency key not found")
)

// SetIdempotencyKey sets a key if it doesn't exist.
// Returns ErrKeyExists if the key is already present.
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) error {
	prefixedKey := c.prefixKey("idempotency:" + key)

	set, err := c.rdb.SetNX(ctx, prefixedKey, "pending", ttl).Result()
	if err != nil {
		return err
	}
	if !set {
		return ErrKeyExists
	}
	return nil
}

// GetIdempotencyKey retrieves an existing idempotency key's value.
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	prefixedKey := c.prefixKey("idempotency:" + key)

	val, err := c.rdb.Get(ctx, prefixedKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return val, err
}

// MarkIdempotencyComplete stores the cached response for a finished operation.
func (c *Client) MarkIdempotencyComplete(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	prefixedKey := c.prefixKey("idempotency:" + key)

	return c.rdb.Set(ctx, prefixedKey, response, ttl).Err()
}

// MarkIdempotencyFailed clears the key so the operation may be retried.
func (c *Client) MarkIdempotencyFailed(ctx context.Context, key string) error {
	prefixedKey := c.prefixKey("idempotency:" + key)

	return c.rdb.Del(ctx, prefixedKey).Err()
}

// CheckAndSetIdempotency claims the key or returns the cached response.
// Returns (nil, nil) when the key was freshly claimed, (response, nil) when a
// completed result is cached, and ErrKeyExists while a claim is in flight.
func (c *Client) CheckAndSetIdempotency(ctx context.Context, key string, ttl time.Duration) ([]byte, error) {
	prefixedKey := c.prefixKey("idempotency:" + key)

	set, err := c.rdb.SetNX(ctx, prefixedKey, "pending", ttl).Result()
	if err != nil {
		return nil, err
	}

	if set {
		return nil, nil
	}

	val, err := c.rdb.Get(ctx, prefixedKey).Result()
	if err != nil {
		return nil, err
	}

	if val == "pending" {
		return nil, ErrKeyExists
	}

	return []byte(val), nil
}
