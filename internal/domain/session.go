package domain

import "time"

// Session 服务端登录会话，Cookie 中只保存 ID
type Session struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"userId"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired 会话是否已过期
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
