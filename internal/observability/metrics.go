package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pulsectl",
			Subsystem: "conn",
			Name:      "active",
			Help:      "Currently registered connections.",
		},
	)
	connectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulsectl",
			Subsystem: "conn",
			Name:      "accepted_total",
			Help:      "Connections accepted and registered.",
		},
	)
	connectionsTornDown = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsectl",
			Subsystem: "conn",
			Name:      "torn_down_total",
			Help:      "Connections torn down, by reason.",
		},
		[]string{"reason"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsectl",
			Subsystem: "msg",
			Name:      "total",
			Help:      "Protocol messages, by direction and type.",
		},
		[]string{"direction", "type"},
	)
	malformedLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulsectl",
			Subsystem: "msg",
			Name:      "malformed_total",
			Help:      "Inbound lines that failed to decode.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pulsectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

// Teardown reason labels shared by registry and server.
const (
	ReasonTimeout   = "timeout"
	ReasonStreamEnd = "stream_end"
	ReasonStreamErr = "stream_error"
	ReasonShutdown  = "shutdown"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			activeConnections,
			connectionsAccepted,
			connectionsTornDown,
			messages,
			malformedLines,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordConnectionOpened() {
	RegisterMetrics()
	connectionsAccepted.Inc()
	activeConnections.Inc()
}

func RecordConnectionClosed(reason string) {
	RegisterMetrics()
	connectionsTornDown.WithLabelValues(reason).Inc()
	activeConnections.Dec()
}

func RecordMessage(direction, msgType string) {
	RegisterMetrics()
	messages.WithLabelValues(direction, msgType).Inc()
}

func RecordMalformedLine() {
	RegisterMetrics()
	malformedLines.Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
