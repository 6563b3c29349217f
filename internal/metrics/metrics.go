// Package metrics exposes prometheus instrumentation for the linking and
// quota subsystem.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	NoncesIssued     prometheus.Counter
	NonceDeduped     prometheus.Counter
	FinalizeOutcomes *prometheus.CounterVec
	UsageIncrements  prometheus.Counter
	WebhookDelivery  *prometheus.CounterVec
	SchedulerRuns    *prometheus.CounterVec
	SchedulerErrors  *prometheus.CounterVec

	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		NoncesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_nonces_issued_total",
			Help: "Channel verification nonces issued.",
		}),
		NonceDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_nonces_deduped_total",
			Help: "Nonce create calls answered with an existing unexpired nonce.",
		}),
		FinalizeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlink_finalize_total",
			Help: "Link finalize outcomes by result.",
		}, []string{"result"}),
		UsageIncrements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_usage_increments_total",
			Help: "Usage ledger increments applied.",
		}),
		WebhookDelivery: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlink_webhook_delivery_total",
			Help: "Automation webhook delivery attempts by status.",
		}, []string{"status"}),
		SchedulerRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlink_scheduler_job_runs_total",
			Help: "Scheduler job executions by job name.",
		}, []string{"job"}),
		SchedulerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlink_scheduler_job_errors_total",
			Help: "Scheduler job failures by job name.",
		}, []string{"job"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatlink_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// GinMiddleware records request durations against the matched route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
