package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ProductCache holds the encoded product list for a short TTL.
type ProductCache struct {
	client goredis.Cmdable
	key    string
}

func NewProductCache(client goredis.Cmdable) *ProductCache {
	return &ProductCache{client: client, key: "catalog:products"}
}

func (c *ProductCache) Get(ctx context.Context) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("product cache: get: %w", err)
	}
	return raw, true, nil
}

func (c *ProductCache) Set(ctx context.Context, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("product cache: set: %w", err)
	}
	return nil
}
