package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

func TestMemorySessionStore(t *testing.T) {
	store := NewSessionStore()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &domain.Session{ID: "s1", UserID: 3, Username: "clerk"}, time.Hour))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint(3), got.UserID)

	// 返回副本，修改不影响存储
	got.UserID = 99
	again, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint(3), again.UserID)

	// 滑动续期
	now = now.Add(50 * time.Minute)
	require.NoError(t, store.TouchSession(ctx, "s1", time.Hour))
	now = now.Add(50 * time.Minute)
	_, err = store.GetSession(ctx, "s1")
	assert.NoError(t, err)

	// 过期
	now = now.Add(11 * time.Minute)
	_, err = store.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	assert.ErrorIs(t, store.TouchSession(ctx, "s1", time.Hour), storage.ErrSessionNotFound)

	// 写入时清理过期会话
	require.NoError(t, store.SaveSession(ctx, &domain.Session{ID: "s2", UserID: 4}, time.Hour))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.DeleteSession(ctx, "s2"))
	_, err = store.GetSession(ctx, "s2")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}
