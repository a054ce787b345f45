package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecs/backend/internal/auth"
	"ecs/backend/internal/config"
	"ecs/backend/internal/health"
	"ecs/backend/internal/middleware"
	"ecs/backend/internal/monitoring"
	"ecs/backend/internal/service"
	"ecs/backend/internal/websocket"
)

// RouteRegistrar 向路由器注册额外路由（页面）
type RouteRegistrar interface {
	Register(router *gin.Engine)
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	AuthService    *auth.Service
	SessionAuth    *middleware.SessionAuth
	LoginLimiter   *middleware.IPRateLimiter
	Correspondence *service.CorrespondenceService
	Attachments    *service.AttachmentService
	Contacts       *service.ContactService
	Departments    *service.DepartmentService
	Settings       *service.SettingService
	Activity       *service.ActivityService
	WebSocketHub   *websocket.Hub
	Health         *health.HealthChecker
	Metrics        *monitoring.Metrics
	Web            RouteRegistrar // 页面路由，为空时只提供 API
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.MaxMultipartMemory = 8 << 20

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(deps.Config.Upload.MaxRequestSize))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 健康检查与指标
	if deps.Health != nil {
		router.GET("/health", func(c *gin.Context) {
			report := deps.Health.CheckHealth(c.Request.Context())
			status := http.StatusOK
			if report.Status != health.StatusHealthy {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, report)
		})
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// 实时通知
	if deps.WebSocketHub != nil {
		router.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub, deps.SessionAuth.Authenticate))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, log)
	correspondenceHandler := NewCorrespondenceHandler(deps.Correspondence, log)
	attachmentHandler := NewAttachmentHandler(deps.Attachments, log)
	directoryHandler := NewDirectoryHandler(deps.Contacts, deps.Departments, log)
	settingsHandler := NewSettingsHandler(deps.Settings, deps.Activity, log)

	v1 := router.Group("/api/v1")
	{
		// ========== 认证 ==========
		authRoutes := v1.Group("/auth")
		{
			tokenHandlers := []gin.HandlerFunc{authHandler.Token}
			if deps.LoginLimiter != nil {
				tokenHandlers = append([]gin.HandlerFunc{deps.LoginLimiter.Middleware("api_token")}, tokenHandlers...)
			}
			authRoutes.POST("/token", tokenHandlers...)
			authRoutes.GET("/me", deps.SessionAuth.RequireAPI(), authHandler.Me)
		}

		protected := v1.Group("")
		protected.Use(deps.SessionAuth.RequireAPI())
		{
			// 公文
			protected.GET("/correspondences", correspondenceHandler.List)
			protected.POST("/correspondences", correspondenceHandler.Create)
			protected.GET("/correspondences/:id", correspondenceHandler.Get)
			protected.PUT("/correspondences/:id", correspondenceHandler.Update)
			protected.DELETE("/correspondences/:id", correspondenceHandler.Delete)
			protected.POST("/correspondences/:id/attachments", correspondenceHandler.AddAttachments)
			protected.GET("/stats", correspondenceHandler.Stats)

			// 附件
			protected.GET("/attachments/:id", attachmentHandler.Get)
			protected.GET("/attachments/:id/download", attachmentHandler.Download)
			protected.DELETE("/attachments/:id", attachmentHandler.Delete)

			// 通讯录
			protected.GET("/contacts", directoryHandler.ListContacts)
			protected.POST("/contacts", directoryHandler.CreateContact)
			protected.GET("/contacts/:id", directoryHandler.GetContact)
			protected.PUT("/contacts/:id", directoryHandler.UpdateContact)
			protected.DELETE("/contacts/:id", directoryHandler.DeleteContact)

			// 部门
			protected.GET("/departments", directoryHandler.ListDepartments)
			protected.POST("/departments", directoryHandler.CreateDepartment)
			protected.GET("/departments/:id", directoryHandler.GetDepartment)
			protected.PUT("/departments/:id", directoryHandler.UpdateDepartment)
			protected.DELETE("/departments/:id", directoryHandler.DeleteDepartment)

			// 配置与日志
			protected.GET("/settings", settingsHandler.ListSettings)
			protected.PUT("/settings/:key", settingsHandler.UpdateSetting)
			protected.GET("/activity", settingsHandler.ListActivity)
		}
	}

	if deps.Web != nil {
		deps.Web.Register(router)
	}

	return router
}
