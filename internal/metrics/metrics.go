package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TierWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_tier_writes_total",
			Help: "Memory tier writes by scope and outcome.",
		},
		[]string{"scope", "status"},
	)

	TierQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_tier_queries_total",
			Help: "Memory tier queries by scope and outcome.",
		},
		[]string{"scope", "status"},
	)

	EmbeddingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_embeddings_total",
			Help: "Embedding calls by outcome.",
		},
		[]string{"status"},
	)

	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_cache_ops_total",
			Help: "Cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	AnalysisRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_analysis_runs_total",
			Help: "Pattern analysis runs by category and outcome.",
		},
		[]string{"category", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TierWritesTotal,
		TierQueriesTotal,
		EmbeddingsTotal,
		CacheOpsTotal,
		AnalysisRunsTotal,
	)
}
