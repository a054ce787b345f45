package memory

import (
	"context"
	"sync"
	"time"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

// SessionStore 使用内存保存登录会话，适用于单实例部署与开发环境。
// 进程重启后所有会话失效。
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	now      func() time.Time

	// 下次清理过期会话的时间
	nextCleanup time.Time
}

type sessionEntry struct {
	session   domain.Session
	expiresAt time.Time
}

var _ storage.SessionStore = (*SessionStore)(nil)

// cleanupInterval 惰性清理过期会话的最小间隔
const cleanupInterval = time.Minute

// NewSessionStore 创建内存会话存储
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

// SaveSession 保存会话
func (s *SessionStore) SaveSession(_ context.Context, session *domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cleanupLocked(now)

	s.sessions[session.ID] = &sessionEntry{
		session:   *session,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// GetSession 获取未过期的会话
func (s *SessionStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, storage.ErrSessionNotFound
	}

	session := entry.session
	return &session, nil
}

// TouchSession 刷新会话过期时间
func (s *SessionStore) TouchSession(_ context.Context, id string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.sessions[id]
	if !ok || !now.Before(entry.expiresAt) {
		return storage.ErrSessionNotFound
	}
	entry.expiresAt = now.Add(ttl)
	return nil
}

// DeleteSession 删除会话
func (s *SessionStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len 当前保存的会话数
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// cleanupLocked 定期删除过期会话，调用方持有写锁
func (s *SessionStore) cleanupLocked(now time.Time) {
	if now.Before(s.nextCleanup) {
		return
	}
	for id, entry := range s.sessions {
		if !now.Before(entry.expiresAt) {
			delete(s.sessions, id)
		}
	}
	s.nextCleanup = now.Add(cleanupInterval)
}
