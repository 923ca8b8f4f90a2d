// Package telemetry exposes internal process counters via
// github.com/prometheus/client_golang. This is ambient observability
// instrumentation only — the HTTP /metrics surface, scraping, and any
// aggregation/reporting pipeline are out of scope for this module; nothing
// here starts a server or exports anywhere.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Registry isolates this module's metrics from prometheus's global default
// registry, so embedding applications choose whether and how to expose them.
var Registry = prometheus.NewRegistry()

var (
	RPCRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pers_rpc_requests_total",
		Help: "JSON-RPC calls issued, by method and outcome.",
	}, []string{"method", "outcome"})

	RPCRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pers_rpc_retries_total",
		Help: "Retry attempts across all JSON-RPC calls.",
	})

	RPCLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pers_rpc_latency_seconds",
		Help:    "JSON-RPC call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pers_cache_hits_total",
		Help: "Result cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pers_cache_misses_total",
		Help: "Result cache misses.",
	})

	DetectorVerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pers_detector_verdicts_total",
		Help: "Honeypot detector verdicts, by classification.",
	}, []string{"verdict"})

	AnalysisLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pers_analysis_latency_seconds",
		Help:    "End-to-end analyze() latency.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	Registry.MustRegister(
		RPCRequestsTotal,
		RPCRetriesTotal,
		RPCLatencySeconds,
		CacheHitsTotal,
		CacheMissesTotal,
		DetectorVerdictsTotal,
		AnalysisLatencySeconds,
	)
}
