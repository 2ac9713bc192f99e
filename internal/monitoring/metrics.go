package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 指标注册在实例自带的 Registry 上，多实例（测试）互不冲突。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮箱指标
	MailboxesCreated *prometheus.CounterVec
	MailboxesDeleted prometheus.Counter

	// 入站指标
	MessagesIngested  *prometheus.CounterVec
	MessagesEvicted   prometheus.Counter
	AttachmentsStored prometheus.Counter
	AttachmentBytes   prometheus.Histogram

	// 限流指标
	GenerationDenied *prometheus.CounterVec

	// 清理指标
	CleanupMailboxes prometheus.Counter
	CleanupDuration  prometheus.Histogram
}

// NewMetrics 创建监控指标。
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempinbox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempinbox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		MailboxesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempinbox_mailboxes_created_total",
				Help: "Mailboxes created, labeled by plan tier",
			},
			[]string{"tier"},
		),
		MailboxesDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempinbox_mailboxes_deleted_total",
				Help: "Mailboxes deleted by users or cleanup",
			},
		),
		MessagesIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempinbox_messages_ingested_total",
				Help: "Inbound webhook messages, labeled by outcome",
			},
			[]string{"outcome"},
		),
		MessagesEvicted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempinbox_messages_evicted_total",
				Help: "Messages evicted to make room for new mail",
			},
		),
		AttachmentsStored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempinbox_attachments_stored_total",
				Help: "Attachments uploaded to blob storage",
			},
		),
		AttachmentBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tempinbox_attachment_bytes",
				Help:    "Size distribution of stored attachments",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		GenerationDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempinbox_generation_denied_total",
				Help: "Mailbox generations denied by rate limit, labeled by tier",
			},
			[]string{"tier"},
		),
		CleanupMailboxes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempinbox_cleanup_mailboxes_total",
				Help: "Expired mailboxes removed by cleanup cycles",
			},
		),
		CleanupDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tempinbox_cleanup_duration_seconds",
				Help:    "Duration of cleanup cycles",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// GinMiddleware 记录每个请求的计数与耗时。
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 /metrics 的处理器。
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
