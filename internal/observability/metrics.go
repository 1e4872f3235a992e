package observability

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workroom_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketRoomConnections is the gauge of subscribers per conversation room.
	WebSocketRoomConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workroom_websocket_room_connections",
		Help: "Number of WebSocket subscribers per conversation room",
	}, []string{"conversation_id"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workroom_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// MessageThroughput counts messages processed by event type.
	MessageThroughput = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workroom_message_throughput_total",
		Help: "Total number of messages processed",
	}, []string{"event_type"})

	// PostProcessingFailures counts post-processing stage failures.
	// These never surface to the sender; metrics and logs are the only trace.
	PostProcessingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workroom_post_processing_failures_total",
		Help: "Total number of post-processing failures by stage",
	}, []string{"stage"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workroom_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})
)

// InitMetrics creates the Fiber Prometheus middleware for HTTP metrics.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}
