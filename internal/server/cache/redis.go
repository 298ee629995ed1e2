package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
)

var _ Cache = (*RedisCache)(nil)

// RedisCache implements Cache on top of a go-redis client. Every command is
// bounded by the configured timeout in addition to the caller's deadline.
type RedisCache struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewRedisCache wraps client. A non-positive timeout leaves commands bounded
// only by the caller's context.
func NewRedisCache(client redis.UniversalClient, timeout time.Duration) *RedisCache {
	return &RedisCache{client: client, timeout: timeout}
}

// NewClient builds a pooled client from a redis:// URL.
func NewClient(redisURL string, opTimeout time.Duration) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 1
	opt.DialTimeout = 5 * time.Second
	if opTimeout > 0 {
		opt.ReadTimeout = opTimeout
		opt.WriteTimeout = opTimeout
	}
	opt.ConnMaxIdleTime = 5 * time.Minute

	return redis.NewClient(opt), nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (c *RedisCache) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", err)
	}
	return ok, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	} else if err != nil {
		return "", false, unavailable("get", err)
	}
	return v, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ok, err := c.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, unavailable("expire", err)
	}
	return ok, nil
}

func (c *RedisCache) AddToSet(ctx context.Context, setKey, member string, ttl time.Duration) error {
	return c.Set(ctx, MemberKey(setKey, member), "1", ttl)
}

func (c *RedisCache) SetContains(ctx context.Context, setKey, member string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.client.Exists(ctx, MemberKey(setKey, member)).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func unavailable(op string, err error) error {
	return common.Wrap(common.ReasonCacheUnavailable, fmt.Errorf("redis %s: %w", op, err))
}
