package cache

import (
	"sync"
	"time"
)

// LocalCache 进程内 TTL 缓存
//
// 特点：
// - 读多写少，读写锁保护
// - 条目按 TTL 过期，读取时惰性删除
// - 超过容量时淘汰最早过期的条目
// - 可选的后台清理协程，通过 Close 停止
type LocalCache[V any] struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大缓存条目数，<= 0 表示不限制
//   - ttl: 默认过期时间
func NewLocalCache[V any](maxSize int, ttl time.Duration) *LocalCache[V] {
	return &LocalCache[V]{
		data:    make(map[string]cacheEntry[V]),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Get 获取缓存值
func (c *LocalCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	if c.now().After(entry.expiresAt) {
		c.Delete(key)
		var zero V
		return zero, false
	}

	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.evictLocked()
	}

	c.data[key] = cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Delete 删除缓存值
func (c *LocalCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Clear 清空所有缓存
func (c *LocalCache[V]) Clear() {
	c.mu.Lock()
	c.data = make(map[string]cacheEntry[V])
	c.mu.Unlock()
}

// Len 当前条目数（含未清理的过期条目）
func (c *LocalCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// StartCleanup 启动定期清理，Close 后退出
func (c *LocalCache[V]) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.purgeExpired()
			}
		}
	}()
}

// Close 停止后台清理
func (c *LocalCache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *LocalCache[V]) purgeExpired() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}

// evictLocked 淘汰最早过期的条目，调用方持有写锁
func (c *LocalCache[V]) evictLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for key, entry := range c.data {
		if !found || entry.expiresAt.Before(oldest) {
			oldestKey, oldest, found = key, entry.expiresAt, true
		}
	}
	if found {
		delete(c.data, oldestKey)
	}
}
