package httptransport

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/auth"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/middleware"
	"ecs/backend/internal/monitoring"
)

// AuthHandler 处理 API 令牌相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service       // 认证业务服务
	metrics     *monitoring.Metrics // 登录计数
	log         *zap.Logger         // 结构化日志记录器
}

// NewAuthHandler 创建新的认证处理器实例
func NewAuthHandler(authService *auth.Service, metrics *monitoring.Metrics, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		metrics:     metrics,
		log:         log,
	}
}

type tokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresIn   int64        `json:"expiresIn"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

type userResponse struct {
	ID           uint       `json:"id"`
	Username     string     `json:"username"`
	FullName     string     `json:"fullName"`
	Email        string     `json:"email,omitempty"`
	DepartmentID *uint      `json:"departmentId,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

func newUserResponse(user *domain.User) userResponse {
	resp := userResponse{
		ID:           user.ID,
		Username:     user.Username,
		FullName:     user.FullName,
		DepartmentID: user.DepartmentID,
		LastLoginAt:  user.LastLoginAt,
	}
	if user.Email != nil {
		resp.Email = *user.Email
	}
	return resp
}

// Token 用户名（或邮箱）和密码换取访问令牌
// POST /api/v1/auth/token
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		Identifier: strings.TrimSpace(req.Username),
		Password:   req.Password,
		IP:         c.ClientIP(),
	})
	if err != nil {
		h.metrics.RecordLogin("failure")
		Fail(c, h.log, err)
		return
	}
	h.metrics.RecordLogin("success")

	token, err := h.authService.IssueToken(user)
	if err != nil {
		h.log.Error("failed to issue token", zap.Error(err))
		InternalError(c, "生成令牌失败")
		return
	}

	h.log.Info("api token issued",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
	)

	Success(c, tokenResponse{
		User:        newUserResponse(user),
		AccessToken: token.AccessToken,
		ExpiresIn:   token.ExpiresIn,
		ExpiresAt:   token.ExpiresAt,
	})
}

// Me 当前登录用户
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}
	Success(c, newUserResponse(user))
}
