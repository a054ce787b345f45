package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ecs/backend/internal/auth"
	jwtpkg "ecs/backend/internal/auth/jwt"
	"ecs/backend/internal/config"
	"ecs/backend/internal/health"
	"ecs/backend/internal/logger"
	"ecs/backend/internal/middleware"
	"ecs/backend/internal/monitoring"
	"ecs/backend/internal/pool"
	"ecs/backend/internal/security"
	"ecs/backend/internal/service"
	"ecs/backend/internal/storage"
	"ecs/backend/internal/storage/filesystem"
	"ecs/backend/internal/storage/memory"
	redisstore "ecs/backend/internal/storage/redis"
	sqlstore "ecs/backend/internal/storage/sql"
	httptransport "ecs/backend/internal/transport/http"
	"ecs/backend/internal/transport/web"
	"ecs/backend/internal/websocket"
)

const (
	version = "1.0.0"

	// 事件转发协程池
	relayWorkers   = 4
	relayQueueSize = 256

	// 限流器清理间隔
	limiterCleanupInterval = 5 * time.Minute
)

// main 启动公文收发登记服务：页面、JSON API 与实时通知。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting correspondence server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("database", cfg.Database.Driver),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 数据库（启动时自动迁移）
	store, err := sqlstore.Open(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = store.Close() }()

	files, err := filesystem.NewStore(cfg.Upload.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize upload directory: %w", err)
	}
	log.Info("upload storage initialized", zap.String("path", files.BasePath()))

	metrics := monitoring.NewMetrics()

	healthChecker := health.NewHealthChecker(log)
	healthChecker.AddDependency("database", health.PingerFunc(store.Health))
	healthChecker.AddWritableDir("upload-dir", files.CheckWritable)

	// 会话存储：启用 Redis 时多实例共享，否则保存在进程内存
	var (
		sessions storage.SessionStore
		relay    *redisstore.EventRelay
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisstore.New(cfg.Redis, log)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()

		sessions = redisstore.NewSessionStore(redisClient)
		relay = redisstore.NewEventRelay(redisClient, cfg.Redis.EventChannel, uuid.NewString(), log)
		healthChecker.AddDependency("redis", redisClient)
		log.Info("using redis session store", zap.String("address", cfg.Redis.Address))
	} else {
		sessions = memory.NewSessionStore()
		log.Info("using in-memory session store")
	}

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry)
	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
	)

	authService := auth.NewService(store, store, sessions, jwtManager, auth.Options{SessionTTL: cfg.Session.TTL}, log)
	if created, err := authService.EnsureAdmin(ctx, cfg.Admin); err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	} else if created {
		log.Info("default admin created", zap.String("username", cfg.Admin.Username))
	}

	// 实时通知
	relayPool := pool.NewWorkerPool(relayWorkers, relayQueueSize, log)
	hubOpts := websocket.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Pool:           relayPool,
		Metrics:        metrics,
	}
	if relay != nil {
		hubOpts.Relay = relay
	}
	hub := websocket.NewHub(hubOpts, log)

	// 服务层
	activity := service.NewActivityService(store, log)
	settings := service.NewSettingService(store, activity)
	defer settings.Close()
	if err := settings.Seed(ctx); err != nil {
		return err
	}

	policy := security.NewUploadPolicy(cfg.Upload)
	attachments := service.NewAttachmentService(store, files, policy, hub, metrics, log)
	correspondence := service.NewCorrespondenceService(store, attachments, hub, metrics, log)
	contacts := service.NewContactService(store, activity, log)
	departments := service.NewDepartmentService(store, store, activity, log)
	sweeper := service.NewOrphanSweeper(store, files, cfg.Upload.OrphanGrace, metrics, log)

	sessionAuth := middleware.NewSessionAuth(authService, cfg.Session, log)
	loginLimiter := middleware.NewIPRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst, metrics, log)

	pages, err := web.NewHandler(web.Dependencies{
		AuthService:    authService,
		SessionAuth:    sessionAuth,
		LoginLimiter:   loginLimiter,
		Correspondence: correspondence,
		Attachments:    attachments,
		Contacts:       contacts,
		Departments:    departments,
		Settings:       settings,
		Metrics:        metrics,
		SecureCookies:  cfg.Session.Secure,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		AuthService:    authService,
		SessionAuth:    sessionAuth,
		LoginLimiter:   loginLimiter,
		Correspondence: correspondence,
		Attachments:    attachments,
		Contacts:       contacts,
		Departments:    departments,
		Settings:       settings,
		Activity:       activity,
		WebSocketHub:   hub,
		Health:         healthChecker,
		Metrics:        metrics,
		Web:            pages,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		hub.Run(groupCtx)
		return nil
	})

	// 事件转发协程池
	relayPool.Start(groupCtx)
	group.Go(func() error {
		<-groupCtx.Done()
		relayPool.Stop()
		return nil
	})

	// 订阅其他实例的事件
	if relay != nil {
		group.Go(func() error {
			return relay.Run(groupCtx, hub.Broadcast)
		})
	}

	// 孤儿附件清理 goroutine
	if cfg.Upload.OrphanSweepInterval > 0 {
		group.Go(func() error {
			log.Info("starting orphan attachment sweep", zap.Duration("interval", cfg.Upload.OrphanSweepInterval))
			return sweeper.Run(groupCtx, cfg.Upload.OrphanSweepInterval)
		})
	}

	// 定时清理空闲的限流器
	group.Go(func() error {
		ticker := time.NewTicker(limiterCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if n := loginLimiter.Cleanup(); n > 0 {
					log.Debug("idle rate limiters removed", zap.Int("count", n))
				}
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
