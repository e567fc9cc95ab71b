package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 命令结果标签
const (
	ResultOK      = "ok"
	ResultErr     = "err"
	ResultInvalid = "invalid"
)

// Metrics 监控指标
type Metrics struct {
	registry *prometheus.Registry

	// 会话指标
	SessionsActive      prometheus.Gauge
	SessionsTotal       prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec

	// 命令指标
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// 存储指标
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	MessagesStored  prometheus.Counter
	MessagesDeleted prometheus.Counter

	// 运维 HTTP 指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标，使用独立注册表并附带 Go 运行时与进程指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWithRegistry(reg)
}

// NewMetricsWithRegistry 在指定注册表上创建监控指标，测试中每个用例传入新的注册表
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "twmailer_sessions_active",
				Help: "Number of client sessions currently open",
			},
		),

		SessionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "twmailer_sessions_total",
				Help: "Total number of client sessions started",
			},
		),

		ConnectionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twmailer_connections_rejected_total",
				Help: "Connections refused by the connection limiter",
			},
			[]string{"reason"},
		),

		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twmailer_commands_total",
				Help: "Total number of protocol commands handled",
			},
			[]string{"command", "result"},
		),

		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "twmailer_command_duration_seconds",
				Help:    "Command handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		StoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twmailer_store_operations_total",
				Help: "Mailbox store operations by outcome",
			},
			[]string{"operation", "result"},
		),

		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "twmailer_store_operation_duration_seconds",
				Help:    "Mailbox store operation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"operation"},
		),

		MessagesStored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "twmailer_messages_stored_total",
				Help: "Total number of messages appended to mailboxes",
			},
		),

		MessagesDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "twmailer_messages_deleted_total",
				Help: "Total number of messages deleted",
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twmailer_http_requests_total",
				Help: "Total number of ops HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "twmailer_http_request_duration_seconds",
				Help:    "Ops HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twmailer_errors_total",
				Help: "Total number of errors by type and component",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "twmailer_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// SessionStarted 记录会话开始
func (m *Metrics) SessionStarted() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionEnded 记录会话结束
func (m *Metrics) SessionEnded() {
	m.SessionsActive.Dec()
}

// RecordRejected 记录被拒绝的连接
func (m *Metrics) RecordRejected(reason string) {
	m.ConnectionsRejected.WithLabelValues(reason).Inc()
}

// RecordCommand 记录命令处理结果
func (m *Metrics) RecordCommand(command, result string, duration time.Duration) {
	m.CommandsTotal.WithLabelValues(command, result).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStoreOperation 记录存储操作
func (m *Metrics) RecordStoreOperation(operation string, err error, duration time.Duration) {
	result := ResultOK
	if err != nil {
		result = ResultErr
	}
	m.StoreOperations.WithLabelValues(operation, result).Inc()
	m.StoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest 记录运维 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
