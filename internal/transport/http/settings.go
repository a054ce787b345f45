package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/middleware"
	"ecs/backend/internal/service"
)

// SettingsHandler 系统配置与操作日志 API
type SettingsHandler struct {
	settings *service.SettingService
	activity *service.ActivityService
	log      *zap.Logger
}

// NewSettingsHandler 创建配置处理器
func NewSettingsHandler(settings *service.SettingService, activity *service.ActivityService, log *zap.Logger) *SettingsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsHandler{settings: settings, activity: activity, log: log}
}

type updateSettingRequest struct {
	Value       *string `json:"value" binding:"required"`
	Description string  `json:"description"`
}

// ListSettings 全部配置项
// GET /api/v1/settings
func (h *SettingsHandler) ListSettings(c *gin.Context) {
	settings, err := h.settings.List(c.Request.Context())
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, settings)
}

// UpdateSetting 新增或修改配置项
// PUT /api/v1/settings/:key
func (h *SettingsHandler) UpdateSetting(c *gin.Context) {
	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	setting, err := h.settings.Set(c.Request.Context(), middleware.CurrentUserID(c), c.Param("key"), *req.Value, req.Description)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "配置已更新", setting)
}

// ListActivity 操作日志，可按 entity_type、entity_id、user_id 过滤
// GET /api/v1/activity
func (h *SettingsHandler) ListActivity(c *gin.Context) {
	filter := domain.ActivityFilter{
		EntityType: c.Query("entity_type"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", domain.DefaultPageSize),
	}
	if v, err := strconv.ParseUint(c.Query("entity_id"), 10, 64); err == nil {
		filter.EntityID = uint(v)
	}
	if v, err := strconv.ParseUint(c.Query("user_id"), 10, 64); err == nil {
		filter.UserID = uint(v)
	}

	page, err := h.activity.List(c.Request.Context(), filter)
	if err != nil {
		Fail(c, h.log, err)
		return
	}
	Success(c, page)
}
