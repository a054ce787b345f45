package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ecs/backend/internal/auth/jwt"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

var (
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserInactive 用户已被禁用
	ErrUserInactive = errors.New("user is inactive")
	// ErrUsernameExists 用户名或邮箱已存在
	ErrUsernameExists = errors.New("username or email already exists")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionInvalid 会话不存在或已过期
	ErrSessionInvalid = errors.New("session expired, please log in again")
	// ErrInvalidOldPassword 原密码错误
	ErrInvalidOldPassword = errors.New("invalid old password")
)

// Options 认证服务配置
type Options struct {
	SessionTTL time.Duration
}

// Service 认证服务：登录、会话与用户管理
type Service struct {
	users      storage.UserRepository
	activity   storage.ActivityRepository
	sessions   storage.SessionStore
	tokens     *jwt.Manager
	sessionTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

// NewService 创建认证服务
func NewService(users storage.UserRepository, activity storage.ActivityRepository, sessions storage.SessionStore, tokens *jwt.Manager, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Service{
		users:      users,
		activity:   activity,
		sessions:   sessions,
		tokens:     tokens,
		sessionTTL: opts.SessionTTL,
		log:        log,
		now:        time.Now,
	}
}

// SessionTTL 会话有效期
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// LoginInput 登录输入
type LoginInput struct {
	Identifier string // 用户名或邮箱
	Password   string
	IP         string
}

// Login 校验用户名（或邮箱）与密码，成功后记录登录时间与操作日志
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.User, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, identifier)
	if errors.Is(err, storage.ErrUserNotFound) && strings.Contains(identifier, "@") {
		user, err = s.users.GetUserByEmail(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// 用户不存在时同样执行一次哈希比较
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(input.Password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to update last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now

	s.record(ctx, user.ID, domain.ActionLogin, "User logged in from "+input.IP)

	return user, nil
}

// dummyHash 用户不存在时参与比较的哈希
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

// CreateSession 为已登录用户创建服务端会话
func (s *Service) CreateSession(ctx context.Context, user *domain.User) (*domain.Session, error) {
	now := s.now().UTC()
	session := &domain.Session{
		ID:        newSessionID(),
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	if err := s.sessions.SaveSession(ctx, session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// newSessionID 两个随机 UUID 拼接，共 64 个十六进制字符
func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// ResolveSession 根据会话 ID 加载用户并续期；用户被禁用时会话立即失效
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*domain.User, error) {
	if sessionID == "" {
		return nil, ErrSessionInvalid
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			_ = s.sessions.DeleteSession(ctx, sessionID)
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		_ = s.sessions.DeleteSession(ctx, sessionID)
		return nil, ErrUserInactive
	}

	if err := s.sessions.TouchSession(ctx, sessionID, s.sessionTTL); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		s.log.Warn("failed to refresh session", zap.Error(err))
	}

	return user, nil
}

// Logout 销毁会话
func (s *Service) Logout(ctx context.Context, sessionID string, userID uint) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if userID != 0 {
		s.record(ctx, userID, domain.ActionLogout, "User logged out")
	}
	return nil
}

// IssueToken 为 API 客户端签发访问令牌
func (s *Service) IssueToken(user *domain.User) (*jwt.Token, error) {
	return s.tokens.GenerateAccessToken(user.ID, user.Username)
}

// AuthenticateToken 校验 Bearer 令牌并加载用户
func (s *Service) AuthenticateToken(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, jwt.ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// record 写入操作日志，失败只记录警告
func (s *Service) record(ctx context.Context, userID uint, action domain.ActivityAction, description string) {
	if s.activity == nil {
		return
	}
	err := s.activity.AppendActivity(ctx, &domain.ActivityLog{
		UserID:      userID,
		Action:      action,
		EntityType:  domain.EntityUser,
		EntityID:    userID,
		Description: description,
	})
	if err != nil {
		s.log.Warn("failed to record activity", zap.String("action", string(action)), zap.Error(err))
	}
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
