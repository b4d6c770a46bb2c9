package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return s, &RedisStore{Client: redis.NewClient(&redis.Options{Addr: s.Addr()})}
}

func TestETLStatusRoundTrip(t *testing.T) {
	ms, store := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := store.GetETLStatus(ctx, ETLStatusKey)
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.SetETLStatus(ctx, ETLStatusKey, ETLStatus{LastUpdate: now, Rows: 42, Status: "success"}, time.Hour))

	st, ok, err := store.GetETLStatus(ctx, ETLStatusKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, st.Rows)
	assert.True(t, now.Equal(st.LastUpdate))
	assert.Equal(t, time.Hour, ms.TTL(ETLStatusKey))
}

func TestHourlyStatusFallsBackToDaily(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SetETLStatus(ctx, ETLStatusKey, ETLStatus{Status: "daily"}, 0))
	st, ok, err := store.HourlyStatus(ctx, "UTC")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "daily", st.Status)

	require.NoError(t, store.SetETLStatus(ctx, HourlyStatusPrefix+"UTC", ETLStatus{Status: "hourly"}, 0))
	st, _, err = store.HourlyStatus(ctx, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "hourly", st.Status)
}

func TestDeletePattern(t *testing.T) {
	ms, store := setupTestRedis(t)
	require.NoError(t, ms.Set("data:a", "1"))
	require.NoError(t, ms.Set("data:b", "1"))
	require.NoError(t, ms.Set("users:a", "1"))

	n, err := store.DeletePattern(context.Background(), "data:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, ms.Exists("data:a"))
	assert.True(t, ms.Exists("users:a"))
}
