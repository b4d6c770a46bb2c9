package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records calls so tests can assert on them.
type MockMetricsRegistry struct {
	mu       sync.Mutex
	Requests map[string]int
	Cache    map[string]int
	ETLRuns  map[string]int
	ETLRows  map[string]int
	Retries  map[string]int
	Ledger   map[string]int
	Limited  map[string]int
}

// NewMockMetricsRegistry returns an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Requests: map[string]int{},
		Cache:    map[string]int{},
		ETLRuns:  map[string]int{},
		ETLRows:  map[string]int{},
		Retries:  map[string]int{},
		Ledger:   map[string]int{},
		Limited:  map[string]int{},
	}
}

func (m *MockMetricsRegistry) inc(bucket map[string]int, key string) {
	m.mu.Lock()
	bucket[key]++
	m.mu.Unlock()
}

// Count returns the number of times key was recorded in bucket.
func (m *MockMetricsRegistry) Count(bucket map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bucket[key]
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc(m.Requests, endpoint+" "+status)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) RecordQueryLatency(query string, duration time.Duration)              {}
func (m *MockMetricsRegistry) IncrementCacheLookups(prefix, outcome string) {
	m.inc(m.Cache, prefix+":"+outcome)
}
func (m *MockMetricsRegistry) IncrementETLRuns(job, outcome string) {
	m.inc(m.ETLRuns, job+":"+outcome)
}
func (m *MockMetricsRegistry) SetETLRows(job string, rows int) {
	m.mu.Lock()
	m.ETLRows[job] = rows
	m.mu.Unlock()
}
func (m *MockMetricsRegistry) RecordETLDuration(job string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementUpstreamRetries(service string) {
	m.inc(m.Retries, service)
}
func (m *MockMetricsRegistry) IncrementSpendCorrections(action string) {
	m.inc(m.Ledger, action)
}
func (m *MockMetricsRegistry) IncrementRateLimitRequests(key string) {}
func (m *MockMetricsRegistry) IncrementRateLimitHits(key string) {
	m.inc(m.Limited, key)
}
