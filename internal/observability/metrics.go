package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// warehouse query latency by query name
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_query_duration_seconds",
			Help:    "Histogram of warehouse query latencies",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"query"},
	)

	// response cache lookups labelled by key prefix and outcome (hit, miss, refresh)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_lookups_total",
			Help: "Total response cache lookups",
		},
		[]string{"prefix", "outcome"},
	)

	// ETL job runs labelled by job and outcome
	ETLRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_etl_runs_total",
			Help: "Total ETL job runs",
		},
		[]string{"job", "outcome"},
	)

	// rows written by the most recent ETL run
	ETLRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_etl_rows",
			Help: "Rows written by the last ETL run",
		},
		[]string{"job"},
	)

	ETLDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_etl_duration_seconds",
			Help:    "Duration of ETL job runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"job"},
	)

	// upstream HTTP retries per service
	UpstreamRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_upstream_retries_total",
			Help: "Total retried upstream API requests",
		},
		[]string{"service"},
	)

	// spend ledger operations labelled by action
	SpendCorrections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_spend_corrections_total",
			Help: "Total spend ledger operations",
		},
		[]string{"action"},
	)

	// rate limit hits per key
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_ratelimit_hits_total",
			Help: "Total rate limit hits per key",
		},
		[]string{"key"},
	)

	// rate limit requests per key
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_ratelimit_requests_total",
			Help: "Total rate limit requests per key",
		},
		[]string{"key"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		QueryLatency,
		CacheLookups,
		ETLRuns,
		ETLRows,
		ETLDuration,
		UpstreamRetries,
		SpendCorrections,
		RateLimitHits,
		RateLimitRequests,
	)
}
