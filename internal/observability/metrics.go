// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	TransactionsSimulated prometheus.Counter
	TransactionsCompleted *prometheus.CounterVec
	PipelineErrors        *prometheus.CounterVec
	StageLatency          *prometheus.HistogramVec

	// Risk metrics
	RiskScoresBySource *prometheus.CounterVec
	RiskFallbacks      *prometheus.CounterVec
	RiskScore          prometheus.Histogram
	RiskScorerLatency  prometheus.Histogram

	// Batch metrics
	BatchesCreated   prometheus.Counter
	BatchesSealed    *prometheus.CounterVec
	BatchesFinished  *prometheus.CounterVec
	BatchSize        prometheus.Histogram
	PendingBatchSize prometheus.Gauge
	CommitLatency    prometheus.Histogram

	// Notifier metrics
	ObserversConnected prometheus.Gauge
	EventsPublished    *prometheus.CounterVec
	ObserversDropped   prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCommit prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "swap_guard"
	}

	return &Metrics{
		// Pipeline metrics
		TransactionsSimulated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "transactions_simulated_total",
			Help:      "Total number of protection requests simulated",
		}),
		TransactionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "transactions_completed_total",
			Help:      "Total number of transactions completed by route preference",
		}, []string{"route"}),
		PipelineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Total number of pipeline errors by operation and type",
		}, []string{"operation", "error_type"}),
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),

		// Risk metrics
		RiskScoresBySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "scores_total",
			Help:      "Total number of risk results by source (model, fallback)",
		}, []string{"source"}),
		RiskFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "fallbacks_total",
			Help:      "Total number of local-rule fallbacks by reason",
		}, []string{"reason"}),
		RiskScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "score",
			Help:      "Distribution of assigned risk scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		RiskScorerLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "scorer_latency_seconds",
			Help:      "Risk model call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Batch metrics
		BatchesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "created_total",
			Help:      "Total number of batches opened",
		}),
		BatchesSealed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "sealed_total",
			Help:      "Total number of batches sealed by trigger",
		}, []string{"trigger"}),
		BatchesFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "finished_total",
			Help:      "Total number of batches reaching a terminal status",
		}, []string{"status"}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "size",
			Help:      "Member count of sealed batches",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),
		PendingBatchSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "pending_size",
			Help:      "Current member count of the pending batch",
		}),
		CommitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "commit_latency_seconds",
			Help:      "Settlement commit latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		// Notifier metrics
		ObserversConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "observers_connected",
			Help:      "Number of registered observers",
		}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_published_total",
			Help:      "Total number of events published by type",
		}, []string{"type"}),
		ObserversDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "observers_dropped_total",
			Help:      "Total number of observers dropped after disconnect or send failure",
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulCommit: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_commit_timestamp",
			Help:      "Unix timestamp of last successful batch commit",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSimulated increments the simulated transactions counter.
func RecordSimulated() {
	DefaultMetrics.TransactionsSimulated.Inc()
}

// RecordCompleted records a completed transaction by route preference.
func RecordCompleted(protected bool) {
	route := "direct"
	if protected {
		route = "protected"
	}
	DefaultMetrics.TransactionsCompleted.WithLabelValues(route).Inc()
}

// RecordPipelineError records a pipeline error.
func RecordPipelineError(operation, errorType string) {
	DefaultMetrics.PipelineErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordStageLatency records the latency of a pipeline stage.
func RecordStageLatency(stage string, seconds float64) {
	DefaultMetrics.StageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordRiskResult records an assigned risk score and its source.
func RecordRiskResult(source string, score int) {
	DefaultMetrics.RiskScoresBySource.WithLabelValues(source).Inc()
	DefaultMetrics.RiskScore.Observe(float64(score))
}

// RecordRiskFallback records a fallback to the local rule.
func RecordRiskFallback(reason string) {
	DefaultMetrics.RiskFallbacks.WithLabelValues(reason).Inc()
}

// RecordRiskScorerLatency records risk model call latency.
func RecordRiskScorerLatency(seconds float64) {
	DefaultMetrics.RiskScorerLatency.Observe(seconds)
}

// RecordBatchCreated increments the batches created counter.
func RecordBatchCreated() {
	DefaultMetrics.BatchesCreated.Inc()
}

// RecordBatchSealed records a sealed batch and its size.
func RecordBatchSealed(trigger string, size int) {
	DefaultMetrics.BatchesSealed.WithLabelValues(trigger).Inc()
	DefaultMetrics.BatchSize.Observe(float64(size))
}

// RecordBatchFinished records a batch reaching a terminal status.
func RecordBatchFinished(status string) {
	DefaultMetrics.BatchesFinished.WithLabelValues(status).Inc()
}

// UpdatePendingBatchSize updates the pending batch gauge.
func UpdatePendingBatchSize(size int) {
	DefaultMetrics.PendingBatchSize.Set(float64(size))
}

// RecordCommit records commit latency and, on success, the last commit time.
func RecordCommit(seconds float64, success bool, unixTime int64) {
	DefaultMetrics.CommitLatency.Observe(seconds)
	if success {
		DefaultMetrics.LastSuccessfulCommit.Set(float64(unixTime))
	}
}

// UpdateObservers updates the registered observers gauge.
func UpdateObservers(n int) {
	DefaultMetrics.ObserversConnected.Set(float64(n))
}

// RecordEventPublished increments the events published counter.
func RecordEventPublished(eventType string) {
	DefaultMetrics.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordObserverDropped increments the dropped observers counter.
func RecordObserverDropped() {
	DefaultMetrics.ObserversDropped.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
