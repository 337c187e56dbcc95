package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// latency of calls to the external text-understanding service (ms)
	AICallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_call_latency_ms",
			Help:    "External AI service call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10), // 50ms to ~25s
		},
		[]string{"capability", "status"},
	)

	// outcome of escalations from rule-based results to the external service
	EscalationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_escalation_count",
			Help: "Escalations to the external service by component and result",
		},
		[]string{"component", "result"}, // result: accepted, kept_rules, failed
	)

	MessageProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_processed_count",
			Help: "Total number of messages processed by outcome",
		},
		[]string{"outcome"}, // created, linked, updated, skipped, error
	)

	ClassificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_classification_count",
			Help: "Classified messages by intent and method",
		},
		[]string{"intent", "method"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_duration_seconds",
			Help:    "Duration of one batch run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Number of database queries above the slow threshold",
		},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow database queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_count",
			Help: "Outbox events relayed to the broker",
		},
		[]string{"status"}, // sent, failed
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half open)",
		},
		[]string{"name"},
	)
)

func RecordAICallLatency(capability, status string, duration time.Duration) {
	AICallLatency.WithLabelValues(capability, status).Observe(float64(duration.Milliseconds()))
}

func IncrementEscalation(component, result string) {
	EscalationCount.WithLabelValues(component, result).Inc()
}

func IncrementMessageProcessed(outcome string) {
	MessageProcessedCount.WithLabelValues(outcome).Inc()
}

func IncrementClassification(intent, method string) {
	ClassificationCount.WithLabelValues(intent, method).Inc()
}

func RecordBatchDuration(duration time.Duration) {
	BatchDuration.Observe(duration.Seconds())
}

func IncrementSlowQuery(duration time.Duration) {
	SlowQueryCount.Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementOutboxPublish(status string) {
	OutboxPublishCount.WithLabelValues(status).Inc()
}

func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
