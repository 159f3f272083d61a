package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/usageline/usageline/internal/logger"
)

// RedisCache implements Cache on a shared Redis instance. Values are
// stored as JSON strings and returned as json.RawMessage; failures are
// logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisCache(client *redis.Client, logger *logger.Logger) Cache {
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (interface{}, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warnw("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return json.RawMessage(data), true
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warnw("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		c.logger.Warnw("cache set failed", "key", key, "error", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warnw("cache delete failed", "key", key, "error", err)
	}
}

func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) {
	iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warnw("cache delete failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warnw("cache scan failed", "prefix", prefix, "error", err)
	}
}

func (c *RedisCache) Flush(ctx context.Context) {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		c.logger.Warnw("cache flush failed", "error", err)
	}
}
