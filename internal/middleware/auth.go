package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/auth"
	"ecs/backend/internal/auth/jwt"
	"ecs/backend/internal/config"
	"ecs/backend/internal/domain"
)

// 上下文键
const (
	ContextUserKey    = "currentUser"
	ContextSessionKey = "sessionID"
)

// LoginPath 未登录时页面请求的跳转目标
const LoginPath = "/login"

// SessionAuth 会话认证中间件：页面只认 Cookie，API 额外接受 Bearer 令牌
type SessionAuth struct {
	auth *auth.Service
	cfg  config.SessionConfig
	log  *zap.Logger
}

// NewSessionAuth 创建会话认证中间件
func NewSessionAuth(authService *auth.Service, cfg config.SessionConfig, log *zap.Logger) *SessionAuth {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "ecs_session"
	}
	return &SessionAuth{auth: authService, cfg: cfg, log: log}
}

// RequirePage 页面路由：未登录跳转到登录页并带上 next
func (sa *SessionAuth) RequirePage() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, sid, err := sa.sessionUser(c)
		if err != nil {
			sa.reject(c, err)
			c.Redirect(http.StatusSeeOther, LoginPath+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextSessionKey, sid)
		c.Next()
	}
}

// RequireAPI API 路由：未登录返回 401 JSON
func (sa *SessionAuth) RequireAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := sa.Authenticate(c)
		if err != nil {
			sa.reject(c, err)
			msg := "需要登录认证"
			if errors.Is(err, auth.ErrUserInactive) {
				msg = "账户已被禁用"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  msg,
			})
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// Authenticate 识别当前用户，先看 Bearer 令牌，再看会话 Cookie
func (sa *SessionAuth) Authenticate(c *gin.Context) (*domain.User, error) {
	if token := bearerToken(c); token != "" {
		return sa.auth.AuthenticateToken(c.Request.Context(), token)
	}
	user, sid, err := sa.sessionUser(c)
	if err == nil {
		c.Set(ContextSessionKey, sid)
	}
	return user, err
}

// SetSessionCookie 写入会话 Cookie
func (sa *SessionAuth) SetSessionCookie(c *gin.Context, session *domain.Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sa.cfg.CookieName, session.ID, int(sa.auth.SessionTTL().Seconds()), "/", "", sa.cfg.Secure, true)
}

// ClearSessionCookie 删除会话 Cookie
func (sa *SessionAuth) ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sa.cfg.CookieName, "", -1, "/", "", sa.cfg.Secure, true)
}

// SessionID 读取请求携带的会话 ID
func (sa *SessionAuth) SessionID(c *gin.Context) string {
	sid, err := c.Cookie(sa.cfg.CookieName)
	if err != nil {
		return ""
	}
	return sid
}

func (sa *SessionAuth) sessionUser(c *gin.Context) (*domain.User, string, error) {
	sid := sa.SessionID(c)
	if sid == "" {
		return nil, "", auth.ErrSessionInvalid
	}
	user, err := sa.auth.ResolveSession(c.Request.Context(), sid)
	if err != nil {
		return nil, sid, err
	}
	return user, sid, nil
}

// reject 失效会话清掉 Cookie，非预期错误记日志
func (sa *SessionAuth) reject(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrSessionInvalid), errors.Is(err, auth.ErrUserInactive):
		if sa.SessionID(c) != "" {
			sa.ClearSessionCookie(c)
		}
	case errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, jwt.ErrExpiredToken):
		sa.log.Debug("invalid bearer token", zap.String("ip", c.ClientIP()), zap.Error(err))
	default:
		sa.log.Warn("authentication failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
	}
}

// CurrentUser 取出中间件放入上下文的用户
func CurrentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

// CurrentUserID 当前用户 ID，未登录为 0
func CurrentUserID(c *gin.Context) uint {
	if user := CurrentUser(c); user != nil {
		return user.ID
	}
	return 0
}

// bearerToken 从 Authorization 头提取令牌
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
