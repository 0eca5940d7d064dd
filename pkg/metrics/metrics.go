package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	Online = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkguard_online",
		Help: "Whether the application currently considers itself online (1) or offline (0)",
	})

	ConnectivityTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkguard_connectivity_transitions_total",
		Help: "Number of online/offline transitions observed by the status monitor",
	}, []string{"to"})

	ProbeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkguard_probe_failures_total",
		Help: "Number of liveness probe attempts that failed",
	})

	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkguard_probe_duration_seconds",
		Help:    "Time taken by liveness probe round trips",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
	})

	QueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkguard_queue_size",
		Help: "Current number of requests held in the offline queue",
	})

	QueueEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkguard_queue_enqueued_total",
		Help: "Number of requests enqueued while offline, by priority",
	}, []string{"priority"})

	QueueReplayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkguard_queue_replayed_total",
		Help: "Number of queued request replays, by outcome",
	}, []string{"outcome"})

	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkguard_queue_dropped_total",
		Help: "Number of queued requests dropped after exhausting their retry budget",
	})

	RetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkguard_retry_attempts_total",
		Help: "Total number of attempts issued by the retry engine",
	})

	RetryOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkguard_retry_operations_total",
		Help: "Number of retry engine operations that reached a terminal state, by status",
	}, []string{"status"})

	MaxRetriesReached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkguard_max_retries_reached_total",
		Help: "Number of operations that exhausted their retry budget",
	})

	ActiveOperations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkguard_active_operations",
		Help: "Number of retry engine operations currently in flight",
	})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkguard_circuit_breaker_trips_total",
		Help: "Number of times a per-host circuit breaker tripped",
	}, []string{"host"})
)
