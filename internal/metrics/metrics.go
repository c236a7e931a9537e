package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "toehub_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toehub_ws_messages_total",
		Help: "Total number of chat messages broadcast",
	})
	WsBroadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toehub_ws_broadcasts_total",
		Help: "Total number of fan-out rounds (messages and presence)",
	})
	WsFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toehub_ws_frames_total",
		Help: "Total number of outbound websocket frames written",
	})
	WsProtocolErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toehub_ws_protocol_errors_total",
		Help: "Total number of ERROR envelopes sent to clients",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, WsMessagesTotal, WsBroadcastsTotal, WsFramesTotal, WsProtocolErrorsTotal, HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
