package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat server.
//
// Naming convention: namespace_subsystem_name
// - namespace: chat_server (application-level grouping)
// - subsystem: session, registry, wire, redis, circuit_breaker (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, users, rooms)
// - Counter: Cumulative events (frames, rejections, fan-outs)
// - Histogram: Latency distributions (message processing time)

var (
	// ActiveConnections tracks the current number of live TCP sessions
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "session",
		Name:      "connections_active",
		Help:      "Current number of active client connections",
	})

	// ConnectionsRejected counts connections refused at the acceptor
	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "session",
		Name:      "connections_rejected_total",
		Help:      "Total connections refused by the acceptor",
	}, []string{"reason"})

	// ActiveUsers tracks the number of identified users in the registry
	ActiveUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "registry",
		Name:      "users_active",
		Help:      "Current number of identified users",
	})

	// ActiveRooms tracks the number of live chatrooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "registry",
		Name:      "rooms_active",
		Help:      "Current number of live chatrooms",
	})

	// FramesTotal counts wire frames by direction and message type
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "wire",
		Name:      "frames_total",
		Help:      "Total frames sent and received",
	}, []string{"direction", "type"})

	// FanoutRecipients counts notification/broadcast deliveries enqueued
	FanoutRecipients = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "session",
		Name:      "fanout_recipients_total",
		Help:      "Total fan-out deliveries enqueued, by event",
	}, []string{"event"})

	// MessageProcessingDuration tracks the time spent dispatching client messages
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chat_server",
		Subsystem: "session",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing client messages",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	}, []string{"type"})

	// RedisOperationsTotal tracks the total number of Redis bus operations
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// CircuitBreakerState tracks the bus circuit breaker state
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts bus requests (publishes and pings) rejected by the open breaker
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
