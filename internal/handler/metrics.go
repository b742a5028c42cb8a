package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	archiveRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	archiveRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archive_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	archiveReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_profile_reconcile_total",
		Help: "Profile reconciliation outcomes by operation.",
	}, []string{"op", "outcome"})

	archiveSessionEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_session_events_total",
		Help: "Session events by type.",
	}, []string{"event"})

	archiveHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_health_checks_total",
		Help: "Total dependency probes by dependency and result.",
	}, []string{"dependency", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		archiveRequestsTotal.WithLabelValues(method, path, status).Inc()
		archiveRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordReconcile records a profile reconciliation outcome. It matches
// profiles.Recorder.
func RecordReconcile(op, outcome string) {
	archiveReconcileTotal.WithLabelValues(op, outcome).Inc()
}

// RecordSessionEvent records a session event.
func RecordSessionEvent(event string) {
	archiveSessionEventsTotal.WithLabelValues(event).Inc()
}

// RecordHealthCheck records a dependency probe result.
func RecordHealthCheck(dependency string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	archiveHealthChecksTotal.WithLabelValues(dependency, result).Inc()
}
