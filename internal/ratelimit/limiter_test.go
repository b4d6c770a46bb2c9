package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JR-coderli/EFsafari/internal/observability"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTokenBucketAllowAndRefill(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	bucket := newTokenBucket(2, 1, clock.now)

	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.False(t, bucket.Allow(), "half a token is not enough")

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.True(t, bucket.Allow())

	clock.t = clock.t.Add(time.Hour)
	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow(), "refill is capped at capacity")

	hits, total := bucket.Stats()
	assert.EqualValues(t, 3, hits)
	assert.EqualValues(t, 8, total)
}

func TestLimiterIsPerKey(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	l := New(Config{Capacity: 1, RefillRate: 1, Enabled: true}, metrics)
	clock := &fakeClock{t: time.Now()}
	l.now = clock.now

	a := Key("hourly_refresh", "u1")
	b := Key("hourly_refresh", "u2")
	assert.True(t, l.Allow(a))
	assert.False(t, l.Allow(a))
	assert.True(t, l.Allow(b))

	assert.Equal(t, 1, metrics.Count(metrics.Limited, a))
	stats := l.Stats()
	assert.EqualValues(t, 2, stats[a].Total)
	assert.InDelta(t, 0.5, stats[a].HitRate, 1e-9)
}

func TestDisabledLimiterAllows(t *testing.T) {
	l := New(Config{Capacity: 0, Enabled: false}, nil)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("k"))
	}
	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("k"))
}
