package redisdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	applog "searchweave/internal/platform/log"
	"searchweave/internal/search"
)

// PageCache 检索响应页的 Redis 缓存。key 由引擎给出
// （指纹+offset+k），语料快照只在重启时更换，TTL 即失效策略。
type PageCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewPageCache 创建响应页缓存。
func NewPageCache(rdb *redis.Client, ttlSeconds int) *PageCache {
	ttl := 5 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &PageCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: "search:page:",
	}
}

// Get 从缓存取响应页。
func (c *PageCache) Get(ctx context.Context, key string) (*search.Response, bool) {
	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}

	var resp search.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		applog.Warn("[Search/Cache] Failed to unmarshal cached page", "error", err)
		return nil, false
	}
	applog.Debug("[Search/Cache] Hit", "key", key)
	return &resp, true
}

// Set 写入响应页。
func (c *PageCache) Set(ctx context.Context, key string, resp *search.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		applog.Warn("[Search/Cache] Failed to set cache", "key", key, "error", err)
	}
}

// InvalidateAll 清除全部响应页缓存（重建语料后调用）。
func (c *PageCache) InvalidateAll(ctx context.Context) {
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.redis.Del(ctx, keys...)
		applog.Info("[Search/Cache] All pages invalidated", "keys_deleted", len(keys))
	}
}
