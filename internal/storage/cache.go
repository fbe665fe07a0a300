package storage

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dashboardCacheKey = "aiusage:dashboard"
	// 5 分钟，采集是离线批处理，数据本身就允许滞后
	dashboardCacheTTL = 5 * time.Minute
)

// ViewCache 用 Redis 缓存展示端视图。nil 接收者上的所有方法都是空操作，未配置 Redis 时直接传 nil 即可。
type ViewCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewViewCache addr 为空时返回 nil
func NewViewCache(addr string) *ViewCache {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}

	return &ViewCache{rdb: rdb, key: dashboardCacheKey, ttl: dashboardCacheTTL}
}

// Get 命中时把缓存解码进 v 并返回 true
func (c *ViewCache) Get(ctx context.Context, v any) bool {
	if c == nil {
		return false
	}
	bs, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(bs, v) == nil
}

func (c *ViewCache) Set(ctx context.Context, v any) {
	if c == nil {
		return
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key, bs, c.ttl).Err(); err != nil {
		log.Printf("warn: cache dashboard failed: %v", err)
	}
}

// Invalidate 文档更新后删除缓存，下一次请求重新构建
func (c *ViewCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		log.Printf("warn: invalidate dashboard cache failed: %v", err)
	}
}

func (c *ViewCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
