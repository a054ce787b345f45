package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// 检查超时
const checkTimeout = 5 * time.Second

// maxGoroutines 存活检查的协程数上限
const maxGoroutines = 10000

// Status 检查结果
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Pinger 可探活的依赖（数据库、Redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc 将函数适配为 Pinger
type PingerFunc func(ctx context.Context) error

// Ping 调用 f
func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// CheckResult 单项检查结果
type CheckResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report 健康报告
type Report struct {
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Checks    []CheckResult `json:"checks"`
}

type namedCheck struct {
	name  string
	check func(ctx context.Context) error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health    healthcheck.Handler
	checks    []namedCheck
	logger    *zap.Logger
	startTime time.Time
}

// NewHealthChecker 创建健康检查器，默认带协程数存活检查
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health:    healthcheck.NewHandler(),
		logger:    logger,
		startTime: time.Now(),
	}
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	return hc
}

// AddDependency 添加就绪检查，例如数据库或 Redis
func (hc *HealthChecker) AddDependency(name string, p Pinger) {
	check := func(ctx context.Context) error { return p.Ping(ctx) }
	hc.add(name, check)
}

// AddWritableDir 添加目录可写检查
func (hc *HealthChecker) AddWritableDir(name string, checkWritable func() error) {
	hc.add(name, func(context.Context) error { return checkWritable() })
}

func (hc *HealthChecker) add(name string, check func(ctx context.Context) error) {
	hc.checks = append(hc.checks, namedCheck{name: name, check: check})
	hc.health.AddReadinessCheck(name, healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return check(ctx)
	}, checkTimeout))
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查，?full=1 返回各项结果
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// Handler 返回健康检查处理器，挂载 /live 与 /ready
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行全部就绪检查并生成报告
func (hc *HealthChecker) CheckHealth(ctx context.Context) *Report {
	report := &Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(hc.startTime).Round(time.Second).String(),
		Checks:    make([]CheckResult, 0, len(hc.checks)),
	}

	for _, c := range hc.checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := c.check(checkCtx)
		cancel()

		result := CheckResult{Name: c.name, Status: StatusHealthy, Duration: time.Since(start)}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = fmt.Sprintf("%v", err)
			report.Status = StatusUnhealthy
			hc.logger.Warn("health check failed", zap.String("check", c.name), zap.Error(err))
		}
		report.Checks = append(report.Checks, result)
	}

	return report
}
