package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InferenceAttempts tracks every attempt made against the inference provider
	InferenceAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcook_inference_attempts_total",
			Help: "Total number of inference attempts",
		},
		[]string{"provider", "outcome"},
	)

	// InferenceFailures tracks terminal inference failures by reason
	InferenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcook_inference_failures_total",
			Help: "Total number of inference calls that failed after retries",
		},
		[]string{"provider", "reason"},
	)

	// InferenceLatency tracks single attempt latency
	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapcook_inference_latency_seconds",
			Help:    "Inference attempt latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"provider"},
	)

	// SessionTransitions tracks capture state machine transitions
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcook_session_transitions_total",
			Help: "Total number of capture session state transitions",
		},
		[]string{"from", "to"},
	)

	// QueueEnqueued tracks tasks appended to the sync queue
	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcook_queue_enqueued_total",
			Help: "Total number of sync tasks enqueued",
		},
		[]string{"entity_type", "kind"},
	)

	// QueueOutcomes tracks per-task drain results
	QueueOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcook_queue_task_outcomes_total",
			Help: "Sync task attempt outcomes (succeeded, failed, dead_lettered)",
		},
		[]string{"outcome"},
	)

	// QueueDepth tracks the number of tasks per status after each drain
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapcook_queue_depth",
			Help: "Number of sync tasks by status",
		},
		[]string{"status"},
	)

	// DrainDuration tracks how long a drain pass takes
	DrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapcook_queue_drain_duration_seconds",
			Help:    "Duration of sync queue drain passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DBConnectionPoolUsage tracks the remote database pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapcook_db_connection_pool_usage_percent",
			Help: "Remote database connection pool usage percentage",
		},
	)
)
