package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the service exposes.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	ScheduledSweepRuns  prometheus.Counter
	FeedPagesComposed   prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics registry, creating it on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kinship_http_requests_total",
				Help: "Total HTTP requests by method, path, and status",
			}, []string{"method", "path", "status"}),
			HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kinship_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "path", "status"}),
			NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kinship_notifications_sent_total",
				Help: "Notifications marked sent, by type",
			}, []string{"type"}),
			NotificationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kinship_notifications_failed_total",
				Help: "Notifications marked failed, by type",
			}, []string{"type"}),
			ScheduledSweepRuns: promauto.NewCounter(prometheus.CounterOpts{
				Name: "kinship_scheduled_sweep_runs_total",
				Help: "Background sweep executions",
			}),
			FeedPagesComposed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "kinship_feed_pages_composed_total",
				Help: "Feed pages composed",
			}),
		}
	})
	return instance
}
