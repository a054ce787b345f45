package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecs"

// Metrics 监控指标。所有方法对 nil 接收者安全，未启用监控时可直接传 nil。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 公文指标
	CorrespondenceOps *prometheus.CounterVec
	AttachmentBytes   prometheus.Counter
	AttachmentSize    *prometheus.HistogramVec
	OrphansRemoved    prometheus.Counter

	// 登录指标
	LoginAttempts *prometheus.CounterVec

	// 实时推送指标
	WebsocketClients prometheus.Gauge
	Broadcasts       *prometheus.CounterVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec

	// 系统指标
	SystemUptime prometheus.Gauge
}

// NewMetrics 在独立的注册表上创建监控指标，并附带 Go 运行时与进程指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		CorrespondenceOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "correspondence_operations_total",
				Help:      "Correspondence operations by action and result",
			},
			[]string{"action", "result"},
		),

		AttachmentBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attachment_uploaded_bytes_total",
				Help:      "Total bytes of uploaded attachments",
			},
		),

		AttachmentSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attachment_size_bytes",
				Help:      "Uploaded attachment size in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"mime_type"},
		),

		OrphansRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attachment_orphans_removed_total",
				Help:      "Files removed by the orphan sweep",
			},
		),

		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),

		WebsocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Number of connected websocket clients",
			},
		),

		Broadcasts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_broadcasts_total",
				Help:      "Events broadcast to websocket clients",
			},
			[]string{"type"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panics_total",
				Help:      "Total number of recovered panics",
			},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_blocks_total",
				Help:      "Requests rejected by rate limiting",
			},
			[]string{"type"},
		),

		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_uptime_seconds",
				Help:      "System uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordCorrespondenceOp 记录公文操作
func (m *Metrics) RecordCorrespondenceOp(action string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.CorrespondenceOps.WithLabelValues(action, result).Inc()
}

// RecordAttachment 记录上传的附件
func (m *Metrics) RecordAttachment(mimeType string, size int64) {
	if m == nil {
		return
	}
	m.AttachmentBytes.Add(float64(size))
	m.AttachmentSize.WithLabelValues(mimeType).Observe(float64(size))
}

// RecordOrphansRemoved 记录清理的孤儿文件数
func (m *Metrics) RecordOrphansRemoved(n int) {
	if m == nil {
		return
	}
	m.OrphansRemoved.Add(float64(n))
}

// RecordLogin 记录登录结果
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// SetWebsocketClients 更新在线连接数
func (m *Metrics) SetWebsocketClients(n int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Set(float64(n))
}

// RecordBroadcast 记录推送事件
func (m *Metrics) RecordBroadcast(eventType string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(eventType).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	if m == nil {
		return
	}
	m.SystemUptime.Set(uptime.Seconds())
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
