package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
// 所有方法对 nil 接收者安全，未启用指标时可直接传 nil
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbQueryDuration   *prometheus.HistogramVec
	dbQueryTotal      *prometheus.CounterVec
	dbQueryRetries    *prometheus.CounterVec
	dbErrorsTotal     *prometheus.CounterVec
	dbConnectionsOpen prometheus.Gauge

	// 支付指标
	paymentInitTotal     *prometheus.CounterVec
	paymentCallbackTotal *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器并注册到给定的 Registerer
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)

	return &MetricsCollector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tag"},
		),

		dbQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_queries_total",
				Help: "Total number of executed database queries",
			},
			[]string{"tag", "status"},
		),

		dbQueryRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_query_retries_total",
				Help: "Total number of failed database query attempts",
			},
			[]string{"tag"},
		),

		dbErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_errors_total",
				Help: "Total number of database errors",
			},
			[]string{"operation", "error_type"},
		),

		dbConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_open",
				Help: "Number of open database connections",
			},
		),

		paymentInitTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_init_total",
				Help: "Payment initiations by outcome",
			},
			[]string{"outcome"},
		),

		paymentCallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_callbacks_total",
				Help: "Gateway callbacks by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, getStatusCategory(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDBQuery 记录数据库查询指标
func (m *MetricsCollector) RecordDBQuery(tag string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.dbQueryTotal.WithLabelValues(tag, status).Inc()
	m.dbQueryDuration.WithLabelValues(tag).Observe(duration.Seconds())
}

// RecordQueryRetry 记录一次失败的查询尝试
func (m *MetricsCollector) RecordQueryRetry(tag string) {
	if m == nil {
		return
	}
	m.dbQueryRetries.WithLabelValues(tag).Inc()
}

// RecordDBError 记录数据库错误
func (m *MetricsCollector) RecordDBError(operation, errorType string) {
	if m == nil {
		return
	}
	m.dbErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// UpdateDBConnections 更新数据库连接数
func (m *MetricsCollector) UpdateDBConnections(open int) {
	if m == nil {
		return
	}
	m.dbConnectionsOpen.Set(float64(open))
}

// RecordPaymentInit 记录支付发起结果
func (m *MetricsCollector) RecordPaymentInit(outcome string) {
	if m == nil {
		return
	}
	m.paymentInitTotal.WithLabelValues(outcome).Inc()
}

// RecordPaymentCallback 记录网关回调结果
func (m *MetricsCollector) RecordPaymentCallback(outcome string) {
	if m == nil {
		return
	}
	m.paymentCallbackTotal.WithLabelValues(outcome).Inc()
}

// getStatusCategory 获取状态分类
func getStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

var (
	globalCollector *MetricsCollector
	globalOnce      sync.Once
)

// GetGlobalCollector 获取注册在默认 Registry 上的全局指标收集器
func GetGlobalCollector() *MetricsCollector {
	globalOnce.Do(func() {
		globalCollector = NewMetricsCollector(prometheus.DefaultRegisterer)
	})
	return globalCollector
}
