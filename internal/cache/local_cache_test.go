package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCacheExpiry(t *testing.T) {
	c := NewLocalCache[string](10, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("org_name", "Commercial Office", 0)
	c.Set("short", "x", time.Second)

	got, ok := c.Get("org_name")
	require.True(t, ok)
	assert.Equal(t, "Commercial Office", got)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("short")
	assert.False(t, ok, "过期条目不应返回")
	assert.Equal(t, 1, c.Len(), "读取时惰性删除")

	now = now.Add(time.Minute)
	c.purgeExpired()
	assert.Zero(t, c.Len())
}

func TestLocalCacheEviction(t *testing.T) {
	c := NewLocalCache[int](2, time.Minute)

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, time.Hour)

	_, ok := c.Get("a")
	assert.False(t, ok, "容量满时淘汰最早过期的条目")
	assert.Equal(t, 2, c.Len())

	// 覆盖已有键不触发淘汰
	c.Set("b", 20, time.Hour)
	v, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestLocalCacheDeleteAndClear(t *testing.T) {
	c := NewLocalCache[string](0, time.Minute)
	c.StartCleanup(10 * time.Millisecond)
	defer c.Close()

	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Zero(t, c.Len())

	// 重复关闭不应 panic
	c.Close()
}
