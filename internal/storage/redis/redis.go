package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ssoengine/internal/config"
	"ssoengine/internal/storage"
)

// NewClient creates new instance of redis client and checks the connection
func NewClient(ctx context.Context, conf *config.RedisConfig) (*redis.Client, error) {
	const op = "storage.redis.NewClient"

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Host + ":" + strconv.Itoa(conf.Port),
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rdb, nil
}

// CacheWrapper stores JSON encoded values with a per-wrapper TTL
type CacheWrapper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCacheWrapper wraps rdb; a nil rdb gives a disabled cache
func NewCacheWrapper(rdb *redis.Client, ttl time.Duration) *CacheWrapper {
	return &CacheWrapper{rdb: rdb, ttl: ttl}
}

// Get decodes the value under key into dst
func (c *CacheWrapper) Get(ctx context.Context, key string, dst any) error {
	if c == nil || c.rdb == nil {
		return storage.InfoCacheDisabled
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.ErrKeyNotFound
		}
		return err
	}
	return json.Unmarshal(data, dst)
}

// Set stores value under key for the wrapper TTL
func (c *CacheWrapper) Set(ctx context.Context, key string, value any) error {
	if c == nil || c.rdb == nil {
		return storage.InfoCacheDisabled
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate removes keys from cache
func (c *CacheWrapper) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.rdb == nil {
		return storage.InfoCacheDisabled
	}
	return c.rdb.Del(ctx, keys...).Err()
}
