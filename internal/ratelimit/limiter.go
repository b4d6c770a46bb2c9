package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/JR-coderli/EFsafari/internal/observability"
)

// Config holds the bucket settings shared by every key.
type Config struct {
	Capacity   int // burst allowance
	RefillRate int // tokens per second
	Enabled    bool
}

// Limiter keeps one lazily created token bucket per key.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// New returns a Limiter. A nil metrics registry records nothing.
func New(config Config, metrics observability.MetricsRegistry) *Limiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Limiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// Key combines an action and a user id into a limiter key.
func Key(action, userID string) string {
	return action + ":" + userID
}

// Allow reports whether a request under key may proceed. A disabled or nil
// limiter allows everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}
	l.metrics.IncrementRateLimitRequests(key)

	l.mu.RLock()
	bucket, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		l.mu.Lock()
		if bucket, ok = l.buckets[key]; !ok {
			bucket = newTokenBucket(l.config.Capacity, l.config.RefillRate, l.now)
			l.buckets[key] = bucket
		}
		l.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		l.metrics.IncrementRateLimitHits(key)
	}
	return allowed
}

// Stats is a snapshot of one key's activity.
type Stats struct {
	Key     string  `json:"key"`
	Hits    int64   `json:"hits"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%s: %d/%d limited (%.2f%%)", s.Key, s.Hits, s.Total, s.HitRate*100)
}

// Stats returns a snapshot for every key seen so far.
func (l *Limiter) Stats() map[string]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Stats, len(l.buckets))
	for key, b := range l.buckets {
		hits, total := b.Stats()
		s := Stats{Key: key, Hits: hits, Total: total}
		if total > 0 {
			s.HitRate = float64(hits) / float64(total)
		}
		out[key] = s
	}
	return out
}
