package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/etl"
	"github.com/JR-coderli/EFsafari/internal/ledger"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/pkg/distlock"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return s, redis.NewClient(&redis.Options{Addr: s.Addr()})
}

func newScheduler(client *redis.Client, metrics observability.MetricsRegistry) *Scheduler {
	lease := distlock.NewRedisLock(client, OwnerLease, time.Minute)
	return New(lease, time.Minute, time.Second, zap.NewNop(), metrics)
}

func TestOnlyOneInstanceOwns(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	a := newScheduler(client, nil)
	b := newScheduler(client, nil)

	a.heartbeat(ctx)
	b.heartbeat(ctx)
	assert.True(t, a.Owner())
	assert.False(t, b.Owner())

	var runs int
	job := Job{Name: "count", Run: func(context.Context) error { runs++; return nil }}
	assert.True(t, a.runJob(ctx, job))
	assert.False(t, b.runJob(ctx, job))
	assert.Equal(t, 1, runs)
}

func TestOwnershipMovesWhenLeaseExpires(t *testing.T) {
	ms, client := setupTestRedis(t)
	ctx := context.Background()
	a := newScheduler(client, nil)
	b := newScheduler(client, nil)

	a.heartbeat(ctx)
	require.True(t, a.Owner())

	ms.FastForward(2 * time.Minute)
	b.heartbeat(ctx)
	assert.True(t, b.Owner())

	a.heartbeat(ctx)
	assert.False(t, a.Owner(), "extend fails once the lease passed to another holder")
}

func TestStopReleasesLease(t *testing.T) {
	ms, client := setupTestRedis(t)
	s := newScheduler(client, nil)
	s.Start(context.Background())
	require.True(t, s.Owner())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.False(t, ms.Exists("lock:"+OwnerLease))
}

func TestRunJobSkipsOverlap(t *testing.T) {
	_, client := setupTestRedis(t)
	s := newScheduler(client, nil)
	s.heartbeat(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	job := Job{Name: "slow", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	go s.runJob(context.Background(), job)
	<-started
	assert.False(t, s.runJob(context.Background(), job))
	close(release)
}

func TestRunJobRecordsFailures(t *testing.T) {
	_, client := setupTestRedis(t)
	metrics := observability.NewMockMetricsRegistry()
	s := newScheduler(client, metrics)
	s.heartbeat(context.Background())

	s.runJob(context.Background(), Job{Name: "broken", Run: func(context.Context) error { return errors.New("boom") }})
	s.runJob(context.Background(), Job{Name: "busy", Run: func(context.Context) error { return etl.ErrJobBusy }})
	assert.Equal(t, 1, metrics.Count(metrics.ETLRuns, "scheduled_broken:failure"))
	assert.Equal(t, 0, metrics.Count(metrics.ETLRuns, "scheduled_busy:failure"))
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(nil, time.Minute, time.Second, nil, nil)
	assert.Error(t, s.Add(Job{Name: "bad", Spec: "every tuesday"}))
	assert.NoError(t, s.Add(Job{Name: "ok", Spec: "*/10 * * * *", Run: func(context.Context) error { return nil }}))
}

func TestLedgerSyncTargetsYesterday(t *testing.T) {
	store := ledger.NewMemoryStore()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.Facts = []models.FactRow{
		{ReportDate: day, Media: "Google", MetricTuple: models.MetricTuple{Impressions: 10, Spend: 5}},
		{ReportDate: day.AddDate(0, 0, -1), Media: "Google", MetricTuple: models.MetricTuple{Impressions: 7}},
	}
	l := ledger.New(store, zap.NewNop(), nil, "")

	run := LedgerSync(l, func() time.Time { return day.Add(36 * time.Hour) })
	require.NoError(t, run(context.Background()))

	recs, err := l.List(context.Background(), models.SystemUser(), day.AddDate(0, 0, -1), day, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Date.Equal(day))
}
