package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/db"
	"github.com/JR-coderli/EFsafari/internal/observability"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *db.RedisStore) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return s, &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: s.Addr()})}
}

type params struct {
	Dims  []string `json:"dims"`
	Start string   `json:"start"`
}

func TestKeyIsStructural(t *testing.T) {
	a, err := Key{Prefix: "hierarchy", UserID: "u1", Params: params{Dims: []string{"a|b"}, Start: "c"}}.String()
	require.NoError(t, err)
	b, err := Key{Prefix: "hierarchy", UserID: "u1", Params: params{Dims: []string{"a"}, Start: "b|c"}}.String()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^hierarchy:u1:[0-9a-f]{32}$`, a)

	other, err := Key{Prefix: "hierarchy", UserID: "u2", Params: params{Dims: []string{"a|b"}, Start: "c"}}.String()
	require.NoError(t, err)
	assert.NotEqual(t, a, other, "users never share entries")
}

func TestFetchMissThenHit(t *testing.T) {
	ms, store := setupTestRedis(t)
	metrics := observability.NewMockMetricsRegistry()
	c := New(store, 10*time.Minute, 2*time.Minute, true, zap.NewNop(), metrics)

	var loads int32
	load := func(context.Context) ([]string, error) {
		atomic.AddInt32(&loads, 1)
		return []string{"Google", "Meta"}, nil
	}
	key := Key{Prefix: "data", UserID: "u1", Params: params{Start: "2026-01-01"}}

	v, err := Fetch(context.Background(), c, key, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"Google", "Meta"}, v)

	v, err = Fetch(context.Background(), c, key, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"Google", "Meta"}, v)
	assert.EqualValues(t, 1, atomic.LoadInt32(&loads))

	rkey, _ := key.String()
	assert.Equal(t, 10*time.Minute, ms.TTL(rkey))
	assert.Equal(t, 1, metrics.Count(metrics.Cache, "data:miss"))
	assert.Equal(t, 1, metrics.Count(metrics.Cache, "data:hit"))
}

func TestFetchRefreshesNearExpiry(t *testing.T) {
	ms, store := setupTestRedis(t)
	c := New(store, 10*time.Minute, 2*time.Minute, true, zap.NewNop(), nil)

	key := Key{Prefix: "hierarchy", UserID: "u1", Params: params{Start: "x"}}
	var version int32
	load := func(context.Context) (int32, error) { return atomic.AddInt32(&version, 1), nil }

	v, err := Fetch(context.Background(), c, key, load)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	ms.FastForward(9 * time.Minute)

	v, err = Fetch(context.Background(), c, key, load)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v, "stale entry is still served")

	rkey, _ := key.String()
	assert.Eventually(t, func() bool {
		got, err := ms.Get(rkey)
		return err == nil && got == "2"
	}, time.Second, 10*time.Millisecond)
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	_, store := setupTestRedis(t)
	c := New(store, time.Minute, 0, true, zap.NewNop(), nil)
	key := Key{Prefix: "data", UserID: "u1"}

	_, err := Fetch(context.Background(), c, key, func(context.Context) (int, error) { return 0, errors.New("warehouse down") })
	assert.Error(t, err)

	v, err := Fetch(context.Background(), c, key, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDisabledCachePassesThrough(t *testing.T) {
	var calls int
	load := func(context.Context) (int, error) { calls++; return calls, nil }

	var nilCache *Cache
	_, _ = Fetch(context.Background(), nilCache, Key{Prefix: "data"}, load)

	_, store := setupTestRedis(t)
	off := New(store, time.Minute, 0, false, nil, nil)
	_, _ = Fetch(context.Background(), off, Key{Prefix: "data"}, load)
	_, _ = Fetch(context.Background(), off, Key{Prefix: "data"}, load)

	noStore := New(nil, time.Minute, 0, true, nil, nil)
	assert.False(t, noStore.Enabled())
	assert.Equal(t, 3, calls)
}

func TestInvalidate(t *testing.T) {
	ms, store := setupTestRedis(t)
	c := New(store, time.Minute, 0, true, zap.NewNop(), nil)
	require.NoError(t, ms.Set("hierarchy:u1:abc", "1"))
	require.NoError(t, ms.Set("data:u1:abc", "1"))
	require.NoError(t, ms.Set("lock:scheduler-owner", "1"))

	n, err := c.Invalidate(context.Background(), DataPrefixes...)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, ms.Exists("lock:scheduler-owner"))
}
