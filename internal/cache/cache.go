// Package cache stores short-lived JSON values in Redis or in process memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cache 缓存接口
type Cache interface {
	// Get 获取缓存值, 不存在时返回 false
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set 设置缓存值
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 删除缓存
	Delete(ctx context.Context, keys ...string) error
}

const keyPrefix = "aegisher:"

// redisCache Redis缓存实现
type redisCache struct {
	client *redis.Client
}

// NewRedis 创建Redis缓存
func NewRedis(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = keyPrefix + k
	}
	return c.client.Del(ctx, prefixed...).Err()
}

// localCache go-cache本地缓存
type localCache struct {
	cache *gocache.Cache
}

// NewLocal 创建本地缓存
func NewLocal(defaultTTL, cleanupInterval time.Duration) Cache {
	return &localCache{cache: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *localCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := c.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (c *localCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

func (c *localCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.cache.Delete(k)
	}
	return nil
}

// GetJSON decodes a cached JSON value into dst
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) (bool, error) {
	data, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON encodes value as JSON and caches it
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
