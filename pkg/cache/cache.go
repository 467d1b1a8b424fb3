package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss 键不存在
var ErrMiss = errors.New("cache: miss")

// Cache 缓存接口
type Cache interface {
	// Get 获取缓存值，不存在时返回 ErrMiss
	Get(ctx context.Context, key string) (string, error)

	// Set 设置缓存值，ttl 为 0 时使用默认过期时间
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete 删除缓存
	Delete(ctx context.Context, keys ...string) error
}

// CacheOptions 缓存选项
type CacheOptions struct {
	// 默认过期时间
	DefaultTTL time.Duration

	// 键前缀
	KeyPrefix string
}

type memoryItem struct {
	value    string
	expireAt time.Time
}

// MemoryCache 进程内缓存，单实例部署或测试使用
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]memoryItem
	options CacheOptions
	now     func() time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache(opts *CacheOptions) *MemoryCache {
	if opts == nil {
		opts = &CacheOptions{DefaultTTL: time.Hour}
	}
	return &MemoryCache{
		items:   make(map[string]memoryItem),
		options: *opts,
		now:     time.Now,
	}
}

// Get 获取缓存值
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return "", ErrMiss
	}
	if !item.expireAt.IsZero() && !c.now().Before(item.expireAt) {
		delete(c.items, key)
		return "", ErrMiss
	}
	return item.value, nil
}

// Set 设置缓存值
func (c *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.options.DefaultTTL
	}
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expireAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = item
	c.mu.Unlock()
	return nil
}

// Delete 删除缓存
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}
