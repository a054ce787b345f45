package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecs/backend/internal/auth"
	"ecs/backend/internal/auth/jwt"
	"ecs/backend/internal/config"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/monitoring"
	"ecs/backend/internal/storage/memory"
	sqlstore "ecs/backend/internal/storage/sql"
)

type authEnv struct {
	auth    *auth.Service
	session *SessionAuth
	user    *domain.User
}

func setupAuth(t *testing.T) *authEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlstore.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tokens := jwt.NewManager("0123456789abcdef0123456789abcdef", "ecs", time.Hour)
	service := auth.NewService(store, store, memory.NewSessionStore(), tokens, auth.Options{SessionTTL: time.Hour}, nil)

	user, err := service.CreateUser(context.Background(), auth.CreateUserInput{
		Username: "clerk",
		Password: "Password123!",
		FullName: "Office Clerk",
	})
	require.NoError(t, err)

	return &authEnv{
		auth:    service,
		session: NewSessionAuth(service, config.SessionConfig{CookieName: "ecs_session"}, nil),
		user:    user,
	}
}

func (e *authEnv) login(t *testing.T) string {
	t.Helper()
	session, err := e.auth.CreateSession(context.Background(), e.user)
	require.NoError(t, err)
	return session.ID
}

func (e *authEnv) router() *gin.Engine {
	r := gin.New()
	ok := func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Username)
	}
	r.GET("/correspondence", e.session.RequirePage(), ok)
	r.GET("/api/v1/auth/me", e.session.RequireAPI(), ok)
	return r
}

func TestRequirePage_RedirectsToLogin(t *testing.T) {
	env := setupAuth(t)

	rec := httptest.NewRecorder()
	env.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/correspondence?page=2", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fcorrespondence%3Fpage%3D2", rec.Header().Get("Location"))
}

func TestRequirePage_WithSession(t *testing.T) {
	env := setupAuth(t)
	sid := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/correspondence", nil)
	req.AddCookie(&http.Cookie{Name: "ecs_session", Value: sid})
	rec := httptest.NewRecorder()
	env.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clerk", rec.Body.String())
}

func TestRequirePage_UnknownSessionClearsCookie(t *testing.T) {
	env := setupAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/correspondence", nil)
	req.AddCookie(&http.Cookie{Name: "ecs_session", Value: "stale"})
	rec := httptest.NewRecorder()
	env.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "ecs_session=;")
}

func TestRequireAPI(t *testing.T) {
	env := setupAuth(t)

	t.Run("未登录返回401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":401`)
	})

	t.Run("Bearer令牌", func(t *testing.T) {
		token, err := env.auth.IssueToken(env.user)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		rec := httptest.NewRecorder()
		env.router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "clerk", rec.Body.String())
	})

	t.Run("无效令牌", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		env.router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("会话Cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: "ecs_session", Value: env.login(t)})
		rec := httptest.NewRecorder()
		env.router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireAPI_InactiveUser(t *testing.T) {
	env := setupAuth(t)
	sid := env.login(t)
	require.NoError(t, env.auth.SetActive(context.Background(), env.user.ID, false))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "ecs_session", Value: sid})
	rec := httptest.NewRecorder()
	env.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "账户已被禁用")
}

func TestBodySizeLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BodySizeLimit(16))
	r.POST("/upload", func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			if IsBodyTooLarge(err) {
				c.Status(http.StatusRequestEntityTooLarge)
				return
			}
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	t.Run("Content-Length超限", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", 32))))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("分块传输读取时截断", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", 32)))
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("未超限", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("small")))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestIPRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := monitoring.NewMetrics()
	limiter := NewIPRateLimiter(1, 2, metrics, nil)

	r := gin.New()
	r.Any("/login", limiter.Middleware("login"), func(c *gin.Context) { c.Status(http.StatusOK) })

	post := func() int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitBlocks.WithLabelValues("login")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "GET 不计数")
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	limiter := NewIPRateLimiter(10, 1, nil, nil)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.Allow("10.0.0.1")
	now = now.Add(limiterIdleTTL + time.Minute)
	limiter.Allow("10.0.0.2")

	assert.Equal(t, 1, limiter.Cleanup())
}

func TestPanicRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := monitoring.NewMetrics()
	mm := NewMonitoringMiddleware(metrics, nil)

	r := gin.New()
	r.Use(mm.PanicRecovery(), mm.HTTPMetrics())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PanicsTotal))
}
