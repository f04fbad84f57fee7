package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "Total number of HTTP requests processed by the gateway.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_messages_sent_total",
			Help: "Direct messages sent, by outcome.",
		},
		[]string{"outcome"},
	)
	realtimeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_realtime_events_total",
			Help: "Change events delivered to session watchers, by table.",
		},
		[]string{"table"},
	)
	resubscribesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_realtime_resubscribes_total",
			Help: "Subscriptions re-established after a push channel interruption.",
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_active_sessions",
			Help: "Number of connected user sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		messagesSentTotal,
		realtimeEventsTotal,
		resubscribesTotal,
		activeSessions,
	)
}

// Middleware records request count and latency per route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the prometheus scrape endpoint
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// MessageSent records the outcome of a send: confirmed, rolled_back or rejected
func MessageSent(outcome string) {
	messagesSentTotal.WithLabelValues(outcome).Inc()
}

// RealtimeEvent counts one delivered change event
func RealtimeEvent(table string) {
	realtimeEventsTotal.WithLabelValues(table).Inc()
}

// Resubscribed counts one recovered subscription
func Resubscribed() {
	resubscribesTotal.Inc()
}

// SessionOpened and SessionClosed track connected sessions
func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }
