package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postpilot_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postpilot_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// SweepsTotal counts dispatch sweeps by result.
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postpilot_dispatch_sweeps_total",
		Help: "Total number of dispatch sweeps by result",
	}, []string{"result"})

	// SweepDuration records how long a sweep took end to end.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "postpilot_dispatch_sweep_duration_seconds",
		Help:    "Dispatch sweep duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
	})

	// DeliveryAttempts counts delivery attempts by outcome and trigger.
	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postpilot_delivery_attempts_total",
		Help: "Total number of post delivery attempts by outcome",
	}, []string{"outcome", "trigger"})

	// GatewayRequestLatency records posting gateway latency by result kind.
	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postpilot_gateway_request_latency_seconds",
		Help:    "Posting gateway request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	// PostEventsTotal counts post status events seen on the notification bus by type.
	PostEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postpilot_post_events_total",
		Help: "Total number of post status events received from Redis pub/sub by type",
	}, []string{"type"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// ObserveGatewayRequest records a gateway call that started at start.
func ObserveGatewayRequest(result string, start time.Time) {
	GatewayRequestLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
