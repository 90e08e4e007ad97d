package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇聚所有 Prometheus 指标。
//
// 所有记录方法都允许 nil 接收者，测试中不注入指标时直接跳过。
type Metrics struct {
	mailsSent           prometheus.Counter
	mailsFailed         *prometheus.CounterVec
	draftsSaved         prometheus.Counter
	quotaRejected       prometheus.Counter
	accountingFailures  prometheus.Counter
	inboundReceived     prometheus.Counter
	deliveryDuration    prometheus.Histogram
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics 注册并返回全部指标
func NewMetrics() *Metrics {
	return &Metrics{
		mailsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tenantmail_mails_sent_total",
			Help: "Total number of mails successfully delivered",
		}),
		mailsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantmail_mails_failed_total",
			Help: "Total number of failed deliveries by error category",
		}, []string{"category"}),
		draftsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tenantmail_drafts_saved_total",
			Help: "Total number of drafts saved",
		}),
		quotaRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tenantmail_quota_rejected_total",
			Help: "Total number of sends rejected by daily quota",
		}),
		accountingFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tenantmail_accounting_failures_total",
			Help: "Total number of usage accounting failures after delivery",
		}),
		inboundReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tenantmail_inbound_received_total",
			Help: "Total number of mails accepted over inbound SMTP",
		}),
		deliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenantmail_delivery_duration_seconds",
			Help:    "SMTP delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantmail_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantmail_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// MailSentInc 投递成功计数 +1
func (m *Metrics) MailSentInc() {
	if m == nil {
		return
	}
	m.mailsSent.Inc()
}

// MailFailedInc 按错误类别记录投递失败
func (m *Metrics) MailFailedInc(category string) {
	if m == nil {
		return
	}
	m.mailsFailed.WithLabelValues(category).Inc()
}

// DraftSavedInc 草稿保存计数 +1
func (m *Metrics) DraftSavedInc() {
	if m == nil {
		return
	}
	m.draftsSaved.Inc()
}

// QuotaRejectedInc 配额拒绝计数 +1
func (m *Metrics) QuotaRejectedInc() {
	if m == nil {
		return
	}
	m.quotaRejected.Inc()
}

// AccountingFailureInc 计数失败计数 +1
func (m *Metrics) AccountingFailureInc() {
	if m == nil {
		return
	}
	m.accountingFailures.Inc()
}

// InboundReceivedInc 入站接收计数 +1
func (m *Metrics) InboundReceivedInc() {
	if m == nil {
		return
	}
	m.inboundReceived.Inc()
}

// DeliveryObserve 记录一次投递耗时
func (m *Metrics) DeliveryObserve(d time.Duration) {
	if m == nil {
		return
	}
	m.deliveryDuration.Observe(d.Seconds())
}

// HTTPObserve 记录一次 HTTP 请求
func (m *Metrics) HTTPObserve(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// HTTPHandler 返回 /metrics 的处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
