// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic and for the
// streaming transport. Labels are limited to method, registered route path,
// and status code to keep cardinality bounded.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration in seconds by method and route path.
	// Status is omitted to keep histogram cardinality lower.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of in-flight requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// wsConnections gauges currently open streaming connections.
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connections_open",
			Help: "Current number of open WebSocket transcript streams.",
		},
	)

	// wsMessagesOut counts envelopes pushed to streaming subscribers.
	wsMessagesOut = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_messages_sent_total",
			Help: "Total number of envelopes sent over WebSocket streams.",
		},
	)

	// analysesStarted counts audit runs by terminal outcome.
	analysesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_finished_total",
			Help: "Total number of analyses reaching a terminal state.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, wsConnections, wsMessagesOut, analysesFinished)
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
//
// The "path" label uses the registered route (c.FullPath()) to avoid
// unbounded cardinality from raw URLs; unmatched requests fall back to the
// raw path.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// StreamOpened and StreamClosed track the open-connection gauge from the
// WebSocket handler.
func StreamOpened() { wsConnections.Inc() }

// StreamClosed decrements the open-connection gauge.
func StreamClosed() { wsConnections.Dec() }

// StreamMessageSent counts one envelope pushed to a subscriber.
func StreamMessageSent() { wsMessagesOut.Inc() }

// AnalysisFinished counts one analysis reaching the given terminal status.
func AnalysisFinished(status string) { analysesFinished.WithLabelValues(status).Inc() }
