package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/auth"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/middleware"
	"ecs/backend/internal/monitoring"
	"ecs/backend/internal/service"
	httptransport "ecs/backend/internal/transport/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// Dependencies 页面处理器依赖
type Dependencies struct {
	AuthService    *auth.Service
	SessionAuth    *middleware.SessionAuth
	LoginLimiter   *middleware.IPRateLimiter
	Correspondence *service.CorrespondenceService
	Attachments    *service.AttachmentService
	Contacts       *service.ContactService
	Departments    *service.DepartmentService
	Settings       *service.SettingService
	Metrics        *monitoring.Metrics
	SecureCookies  bool
	Logger         *zap.Logger
}

// Handler 服务端渲染的页面
type Handler struct {
	deps      Dependencies
	templates *template.Template
	log       *zap.Logger
}

// NewHandler 解析内嵌模板并创建页面处理器
func NewHandler(deps Dependencies) (*Handler, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Handler{deps: deps, templates: tmpl, log: log}, nil
}

// Register 注册页面路由
func (h *Handler) Register(router *gin.Engine) {
	router.SetHTMLTemplate(h.templates)

	loginHandlers := []gin.HandlerFunc{h.loginSubmit}
	if h.deps.LoginLimiter != nil {
		loginHandlers = append([]gin.HandlerFunc{h.deps.LoginLimiter.Middleware("login")}, loginHandlers...)
	}
	router.GET("/login", h.loginForm)
	router.POST("/login", loginHandlers...)
	router.GET("/logout", h.logout)

	pages := router.Group("/")
	pages.Use(h.deps.SessionAuth.RequirePage())
	{
		pages.GET("/", h.dashboard)

		pages.GET("/correspondence", h.list)
		pages.GET("/correspondence/new", h.newForm)
		pages.POST("/correspondence/new", h.create)
		pages.GET("/correspondences/add", h.newForm)
		pages.POST("/correspondences/add", h.create)
		pages.GET("/correspondence/:id", h.view)
		pages.GET("/correspondence/:id/edit", h.editForm)
		pages.POST("/correspondence/:id/edit", h.update)
		pages.POST("/correspondence/:id/delete", h.delete)
		pages.GET("/correspondence/:id/print", h.print)

		pages.GET("/attachment/:id/download", h.downloadAttachment)
		pages.GET("/attachment/:id/view", h.viewAttachment)
		pages.POST("/attachment/:id/delete", h.deleteAttachment)
	}
}

// render 渲染页面，附带公共数据与一次性提示
func (h *Handler) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["OrgName"] = h.deps.Settings.OrgName(c.Request.Context())
	data["User"] = middleware.CurrentUser(c)
	data["Path"] = c.Request.URL.Path
	if _, ok := data["Flash"]; !ok {
		data["Flash"] = popFlash(c, h.deps.SecureCookies)
	}
	c.HTML(status, name, data)
}

// renderError 出错页面
func (h *Handler) renderError(c *gin.Context, err error) {
	status := httptransport.StatusFor(err)
	msg := httptransport.GetErrorMessage(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("page request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		_ = c.Error(err)
		msg = httptransport.MsgInternalError
	}
	h.render(c, status, "error.html", gin.H{
		"Title":  "出错了",
		"Status": status,
		"Flash":  &Flash{Kind: FlashError, Message: msg},
	})
}

// redirect 设置提示并 303 跳转
func (h *Handler) redirect(c *gin.Context, location string, kind FlashKind, msg string) {
	if msg != "" {
		setFlash(c, Flash{Kind: kind, Message: msg}, h.deps.SecureCookies)
	}
	c.Redirect(http.StatusSeeOther, location)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"date":          formatDate,
		"dateTime":      formatDateTime,
		"fileSize":      formatFileSize,
		"typeLabel":     typeLabel,
		"statusLabel":   statusLabel,
		"priorityLabel": priorityLabel,
		"partyName":     service.PartyName,
		"lookup":        lookupName,
		"overdue":       overdue,
		"partyField":    newPartyField,
		"add":           func(a, b int) int { return a + b },
		"uintEq":        uintEq,
	}
}

// formatDate 接受 time.Time 或 *time.Time
func formatDate(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(domain.DateLayout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format(domain.DateLayout)
	}
	return ""
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func typeLabel(d domain.Direction) string {
	switch d {
	case domain.DirectionIncoming:
		return "来文"
	case domain.DirectionOutgoing:
		return "发文"
	}
	return string(d)
}

func statusLabel(s domain.Status) string {
	switch s {
	case domain.StatusPending:
		return "待办"
	case domain.StatusProcessed:
		return "已办"
	case domain.StatusArchived:
		return "归档"
	}
	return string(s)
}

func priorityLabel(p domain.Priority) string {
	switch p {
	case domain.PriorityLow:
		return "低"
	case domain.PriorityNormal:
		return "普通"
	case domain.PriorityHigh:
		return "高"
	case domain.PriorityUrgent:
		return "特急"
	}
	return string(p)
}

// partyField 往来方输入框的模板数据
type partyField struct {
	Label     string
	Prefix    string
	Kind      string
	ContactID string
	External  string
	Contacts  []domain.Contact
}

func newPartyField(label, prefix, kind, contactID, external string, contacts []domain.Contact) partyField {
	return partyField{
		Label:     label,
		Prefix:    prefix,
		Kind:      kind,
		ContactID: contactID,
		External:  external,
		Contacts:  contacts,
	}
}

func overdue(c domain.Correspondence, now time.Time) bool {
	return c.IsOverdue(now)
}

func lookupName(names map[uint]string, id *uint) string {
	if id == nil {
		return ""
	}
	return names[*id]
}

// uintEq 比较表单中的 ID 字符串与实体 ID
func uintEq(value string, id uint) bool {
	return strings.TrimSpace(value) == fmt.Sprint(id)
}
