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
	// Discovery metrics
	DiscoveryRuns       prometheus.Counter
	HoldingsDiscovered  *prometheus.CounterVec
	StaleResults        prometheus.Counter
	DiscoveryErrors     *prometheus.CounterVec
	MetadataLookups     *prometheus.CounterVec
	RegistryTokensReady prometheus.Gauge

	// Transfer metrics
	TransfersSubmitted *prometheus.CounterVec
	TransferOutcomes   *prometheus.CounterVec
	StateTransitions   *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec
	AttemptsRejected   *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_transfer_desk"
	}

	return &Metrics{
		// Discovery metrics
		DiscoveryRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Total number of holdings discovery runs",
		}),
		HoldingsDiscovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "holdings_total",
			Help:      "Total number of holdings discovered by kind",
		}, []string{"kind"}),
		StaleResults: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "stale_results_total",
			Help:      "Total number of discovery results dropped for a superseded identity",
		}),
		DiscoveryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "errors_total",
			Help:      "Total number of discovery lookup errors by lookup",
		}, []string{"lookup"}),
		MetadataLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "lookups_total",
			Help:      "Total number of metadata lookups by source and result",
		}, []string{"source", "result"}),
		RegistryTokensReady: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "registry_tokens",
			Help:      "Number of tokens loaded from the static registry",
		}),

		// Transfer metrics
		TransfersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "submitted_total",
			Help:      "Total number of transactions submitted by kind",
		}, []string{"kind"}),
		TransferOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "outcomes_total",
			Help:      "Total number of transfer attempts by outcome",
		}, []string{"outcome"}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "state_transitions_total",
			Help:      "Total number of transfer state machine transitions",
		}, []string{"from", "to"}),
		SubmissionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "submission_duration_seconds",
			Help:      "Build, sign and submit duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		AttemptsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "attempts_rejected_total",
			Help:      "Total number of transfer requests rejected before submission",
		}, []string{"reason"}),

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
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordDiscoveryRun increments the discovery runs counter.
func RecordDiscoveryRun() {
	DefaultMetrics.DiscoveryRuns.Inc()
}

// RecordHoldingDiscovered counts one holding of kind "native" or "token".
func RecordHoldingDiscovered(kind string) {
	DefaultMetrics.HoldingsDiscovered.WithLabelValues(kind).Inc()
}

// RecordStaleResult counts a discovery result discarded after an identity change.
func RecordStaleResult() {
	DefaultMetrics.StaleResults.Inc()
}

// RecordDiscoveryError counts a failed balance or token account lookup.
func RecordDiscoveryError(lookup string) {
	DefaultMetrics.DiscoveryErrors.WithLabelValues(lookup).Inc()
}

// RecordMetadataLookup counts a metadata lookup by source and result (hit, miss, error).
func RecordMetadataLookup(source, result string) {
	DefaultMetrics.MetadataLookups.WithLabelValues(source, result).Inc()
}

// SetRegistryTokens records the number of loaded registry tokens.
func SetRegistryTokens(n int) {
	DefaultMetrics.RegistryTokensReady.Set(float64(n))
}

// RecordSubmission records one submitted transaction and its duration.
func RecordSubmission(kind string, seconds float64) {
	DefaultMetrics.TransfersSubmitted.WithLabelValues(kind).Inc()
	DefaultMetrics.SubmissionDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordTransferOutcome counts a finished attempt.
func RecordTransferOutcome(outcome string) {
	DefaultMetrics.TransferOutcomes.WithLabelValues(outcome).Inc()
}

// RecordStateTransition counts a state machine transition.
func RecordStateTransition(from, to string) {
	DefaultMetrics.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordAttemptRejected counts a request rejected before submission.
func RecordAttemptRejected(reason string) {
	DefaultMetrics.AttemptsRejected.WithLabelValues(reason).Inc()
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
