package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// so components never touch the global Prometheus vectors directly.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Warehouse metrics
	RecordQueryLatency(query string, duration time.Duration)

	// Cache metrics
	IncrementCacheLookups(prefix, outcome string)

	// ETL metrics
	IncrementETLRuns(job, outcome string)
	SetETLRows(job string, rows int)
	RecordETLDuration(job string, duration time.Duration)
	IncrementUpstreamRetries(service string)

	// Ledger metrics
	IncrementSpendCorrections(action string)

	// Rate limiting metrics
	IncrementRateLimitRequests(key string)
	IncrementRateLimitHits(key string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Warehouse metrics
func (r *PrometheusRegistry) RecordQueryLatency(query string, duration time.Duration) {
	QueryLatency.WithLabelValues(query).Observe(duration.Seconds())
}

// Cache metrics
func (r *PrometheusRegistry) IncrementCacheLookups(prefix, outcome string) {
	CacheLookups.WithLabelValues(prefix, outcome).Inc()
}

// ETL metrics
func (r *PrometheusRegistry) IncrementETLRuns(job, outcome string) {
	ETLRuns.WithLabelValues(job, outcome).Inc()
}

func (r *PrometheusRegistry) SetETLRows(job string, rows int) {
	ETLRows.WithLabelValues(job).Set(float64(rows))
}

func (r *PrometheusRegistry) RecordETLDuration(job string, duration time.Duration) {
	ETLDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementUpstreamRetries(service string) {
	UpstreamRetries.WithLabelValues(service).Inc()
}

// Ledger metrics
func (r *PrometheusRegistry) IncrementSpendCorrections(action string) {
	SpendCorrections.WithLabelValues(action).Inc()
}

// Rate limiting metrics
func (r *PrometheusRegistry) IncrementRateLimitRequests(key string) {
	RateLimitRequests.WithLabelValues(key).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(key string) {
	RateLimitHits.WithLabelValues(key).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) RecordQueryLatency(query string, duration time.Duration)              {}
func (r *NoOpRegistry) IncrementCacheLookups(prefix, outcome string)                         {}
func (r *NoOpRegistry) IncrementETLRuns(job, outcome string)                                 {}
func (r *NoOpRegistry) SetETLRows(job string, rows int)                                      {}
func (r *NoOpRegistry) RecordETLDuration(job string, duration time.Duration)                 {}
func (r *NoOpRegistry) IncrementUpstreamRetries(service string)                              {}
func (r *NoOpRegistry) IncrementSpendCorrections(action string)                              {}
func (r *NoOpRegistry) IncrementRateLimitRequests(key string)                                {}
func (r *NoOpRegistry) IncrementRateLimitHits(key string)                                    {}
