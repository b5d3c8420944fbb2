package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "saccogov:cache:"
	flushScanCount = 100
)

// Cache implements usecase.Cache using Redis. Keys live under one namespace
// per cache so Flush never touches idempotency records or lock keys.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewCache creates a Cache whose keys are stored under namespace.
func NewCache(client *redis.Client, namespace string) *Cache {
	return &Cache{
		client: client,
		prefix: cacheKeyPrefix + namespace + ":",
	}
}

// Get retrieves a value by key. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Flush deletes the namespace with SCAN so a large cache never blocks redis.
func (c *Cache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", flushScanCount).Iterator()

	batch := make([]string, 0, flushScanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == flushScanCount {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}
