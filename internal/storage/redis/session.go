package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

const sessionKeyPrefix = "session:"

// SessionStore 基于 Redis 的会话存储，过期由 Redis TTL 负责
type SessionStore struct {
	rdb *goredis.Client
}

var _ storage.SessionStore = (*SessionStore)(nil)

// NewSessionStore 创建会话存储
func NewSessionStore(client *Client) *SessionStore {
	return &SessionStore{rdb: client.Client()}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// SaveSession 保存会话
func (s *SessionStore) SaveSession(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.rdb.Set(ctx, sessionKey(session.ID), data, ttl).Err()
}

// GetSession 获取会话
func (s *SessionStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// TouchSession 刷新会话过期时间
func (s *SessionStore) TouchSession(ctx context.Context, id string, ttl time.Duration) error {
	ok, err := s.rdb.Expire(ctx, sessionKey(id), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrSessionNotFound
	}
	return nil
}

// DeleteSession 删除会话
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKey(id)).Err()
}
