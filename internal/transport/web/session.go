package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/auth"
	httptransport "ecs/backend/internal/transport/http"
)

// loginForm 登录页，已登录时直接跳转
func (h *Handler) loginForm(c *gin.Context) {
	next := safeNext(c.Query("next"))
	if sid := h.deps.SessionAuth.SessionID(c); sid != "" {
		if _, err := h.deps.AuthService.ResolveSession(c.Request.Context(), sid); err == nil {
			c.Redirect(http.StatusSeeOther, next)
			return
		}
	}
	h.render(c, http.StatusOK, "login.html", gin.H{"Title": "登录", "Next": next, "Username": ""})
}

// loginSubmit 校验用户名密码并建立会话
func (h *Handler) loginSubmit(c *gin.Context) {
	username := c.PostForm("username")
	next := safeNext(c.PostForm("next"))

	user, err := h.deps.AuthService.Login(c.Request.Context(), auth.LoginInput{
		Identifier: username,
		Password:   c.PostForm("password"),
		IP:         c.ClientIP(),
	})
	if err != nil {
		h.deps.Metrics.RecordLogin("failure")
		status := httptransport.StatusFor(err)
		msg := httptransport.GetErrorMessage(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("login failed", zap.Error(err))
			msg = httptransport.MsgInternalError
		}
		h.render(c, status, "login.html", gin.H{
			"Title":    "登录",
			"Next":     next,
			"Username": username,
			"Flash":    &Flash{Kind: FlashError, Message: msg},
		})
		return
	}

	session, err := h.deps.AuthService.CreateSession(c.Request.Context(), user)
	if err != nil {
		h.renderError(c, err)
		return
	}
	h.deps.Metrics.RecordLogin("success")
	h.deps.SessionAuth.SetSessionCookie(c, session)

	h.redirect(c, next, FlashSuccess, "欢迎回来，"+user.DisplayName())
}

// logout 销毁会话并回到登录页
func (h *Handler) logout(c *gin.Context) {
	ctx := c.Request.Context()
	sid := h.deps.SessionAuth.SessionID(c)

	var userID uint
	if sid != "" {
		if user, err := h.deps.AuthService.ResolveSession(ctx, sid); err == nil {
			userID = user.ID
		}
	}
	if err := h.deps.AuthService.Logout(ctx, sid, userID); err != nil {
		h.log.Warn("failed to destroy session", zap.Error(err))
	}
	h.deps.SessionAuth.ClearSessionCookie(c)

	h.redirect(c, "/login", FlashInfo, "您已退出登录")
}

// safeNext 只允许站内相对路径
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	if strings.HasPrefix(next, "/login") || strings.HasPrefix(next, "/logout") {
		return "/"
	}
	return next
}
