package reporting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/cache"
	"github.com/JR-coderli/EFsafari/internal/db"
	"github.com/JR-coderli/EFsafari/internal/models"
)

type fakeRows struct {
	mu      sync.Mutex
	rows    []FlatRow
	err     error
	queries []Query
	hourly  []HourlyQuery
}

func (f *fakeRows) Rows(_ context.Context, q Query) ([]FlatRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.rows, f.err
}

func (f *fakeRows) HourlyRows(_ context.Context, q HourlyQuery) ([]FlatRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hourly = append(f.hourly, q)
	return f.rows, f.err
}

func (f *fakeRows) Platforms(context.Context, time.Time, time.Time, Predicate) ([]string, error) {
	return []string{"Google", "Mintegral"}, f.err
}

type fakeLanders map[string]string

func (f fakeLanders) LanderURLs(context.Context) (map[string]string, error) { return f, nil }

func newTestCache(t *testing.T) *cache.Cache {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	store := &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: s.Addr()})}
	return cache.New(store, time.Minute, 0, true, zap.NewNop(), nil)
}

func metricRow(values map[string]string, revenue float64) FlatRow {
	return FlatRow{Values: values, Metrics: models.MetricTuple{Impressions: 100, Clicks: 10, Spend: 4, Revenue: revenue}}
}

var (
	admin = models.User{ID: "u-admin", Role: models.RoleAdmin}
	ops   = models.User{ID: "u-ops", Role: models.RoleOps, Keywords: []string{"US"}}
)

func TestDataQueriesOnlyRequestedDepth(t *testing.T) {
	src := &fakeRows{rows: []FlatRow{
		metricRow(map[string]string{"platform": "Google", "offer": "Shop"}, 10),
		metricRow(map[string]string{"platform": "Google", "offer": "Game"}, 30),
	}}
	svc := NewService(src, nil, nil, zap.NewNop(), UnknownRoleDeny, 0)

	rows, err := svc.Data(context.Background(), admin, Request{
		Dimensions: []string{"platform", "offer", "lander"},
		StartDate:  "2026-03-01",
		EndDate:    "2026-03-02",
		Path:       []FilterPathEntry{{Dimension: "platform", Value: "Google"}},
	})
	require.NoError(t, err)

	require.Len(t, src.queries, 1)
	q := src.queries[0]
	assert.Equal(t, []string{"platform", "offer"}, q.Dimensions)
	assert.Equal(t, []FilterPathEntry{{Dimension: "platform", Value: "Google"}}, q.Filters)
	assert.True(t, q.Predicate.Unrestricted())

	require.Len(t, rows, 2)
	assert.Equal(t, "Game", rows[0].Name)
	assert.Equal(t, "Google|Game", rows[0].ID)
	assert.Equal(t, 2, rows[0].Level)
	assert.True(t, rows[0].HasChild)
}

func TestDataLastLevelHasNoChildren(t *testing.T) {
	src := &fakeRows{rows: []FlatRow{metricRow(map[string]string{"platform": "Google"}, 1)}}
	svc := NewService(src, nil, nil, nil, UnknownRoleDeny, 0)

	rows, err := svc.Data(context.Background(), admin, Request{Dimensions: []string{"platform"}, StartDate: "2026-03-01", EndDate: "2026-03-01"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].HasChild)
}

func TestDataRowLimit(t *testing.T) {
	src := &fakeRows{rows: []FlatRow{
		metricRow(map[string]string{"platform": "A"}, 1),
		metricRow(map[string]string{"platform": "B"}, 2),
		metricRow(map[string]string{"platform": "C"}, 3),
	}}
	svc := NewService(src, nil, nil, nil, UnknownRoleDeny, 2)

	rows, err := svc.Data(context.Background(), admin, Request{Dimensions: []string{"platform"}, StartDate: "2026-03-01", EndDate: "2026-03-01"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "C", rows[0].Name)
}

func TestRequestValidation(t *testing.T) {
	svc := NewService(&fakeRows{}, nil, nil, nil, UnknownRoleDeny, 0)
	ctx := context.Background()
	base := Request{StartDate: "2026-03-01", EndDate: "2026-03-02"}

	cases := map[string]Request{
		"no dimensions":  base,
		"duplicate":      {Dimensions: []string{"platform", "platform"}, StartDate: base.StartDate, EndDate: base.EndDate},
		"path too deep":  {Dimensions: []string{"platform"}, StartDate: base.StartDate, EndDate: base.EndDate, Path: []FilterPathEntry{{Dimension: "platform", Value: "x"}}},
		"path mismatch":  {Dimensions: []string{"platform", "offer"}, StartDate: base.StartDate, EndDate: base.EndDate, Path: []FilterPathEntry{{Dimension: "offer", Value: "x"}}},
		"bad start":      {Dimensions: []string{"platform"}, StartDate: "03/01/2026", EndDate: base.EndDate},
		"reversed range": {Dimensions: []string{"platform"}, StartDate: "2026-03-05", EndDate: "2026-03-01"},
	}
	for name, req := range cases {
		_, err := svc.Data(ctx, admin, req)
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
	}

	_, err := svc.Data(ctx, admin, Request{Dimensions: []string{"platform; DROP"}, StartDate: base.StartDate, EndDate: base.EndDate})
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestServiceAppliesUserPredicate(t *testing.T) {
	src := &fakeRows{}
	svc := NewService(src, nil, nil, nil, UnknownRoleDeny, 0)

	_, err := svc.Hierarchy(context.Background(), ops, Request{Dimensions: []string{"platform"}, StartDate: "2026-03-01", EndDate: "2026-03-01"})
	require.NoError(t, err)
	require.Len(t, src.queries, 1)
	assert.Equal(t, TargetAdset, src.queries[0].Predicate.Target)
	assert.Equal(t, []string{"US"}, src.queries[0].Predicate.Keywords)
}

func TestHierarchyIsCachedPerUser(t *testing.T) {
	src := &fakeRows{rows: []FlatRow{metricRow(map[string]string{"platform": "Google", "offer": "Shop"}, 10)}}
	svc := NewService(src, nil, newTestCache(t), nil, UnknownRoleDeny, 0)
	req := Request{Dimensions: []string{"platform", "offer"}, StartDate: "2026-03-01", EndDate: "2026-03-01"}
	ctx := context.Background()

	first, err := svc.Hierarchy(ctx, admin, req)
	require.NoError(t, err)
	second, err := svc.Hierarchy(ctx, admin, req)
	require.NoError(t, err)
	assert.Len(t, src.queries, 1)

	google, ok := second.Hierarchy["Google"]
	require.True(t, ok)
	assert.Equal(t, Branch, google.Kind())
	shop, ok := google.Child("Shop")
	require.True(t, ok)
	assert.True(t, shop.IsLeaf())
	assert.Equal(t, first.Hierarchy["Google"].Metrics, google.Metrics)

	_, err = svc.Hierarchy(ctx, ops, req)
	require.NoError(t, err)
	assert.Len(t, src.queries, 2)
}

func TestErrorsAreNotCached(t *testing.T) {
	src := &fakeRows{err: errors.New("warehouse down")}
	svc := NewService(src, nil, newTestCache(t), nil, UnknownRoleDeny, 0)
	req := Request{Dimensions: []string{"platform"}, StartDate: "2026-03-01", EndDate: "2026-03-01"}

	_, err := svc.Hierarchy(context.Background(), admin, req)
	assert.Error(t, err)

	src.err = nil
	_, err = svc.Hierarchy(context.Background(), admin, req)
	assert.NoError(t, err)
	assert.Len(t, src.queries, 2)
}

func TestAggregateSumsRows(t *testing.T) {
	src := &fakeRows{rows: []FlatRow{
		metricRow(map[string]string{}, 10),
		metricRow(map[string]string{}, 6),
	}}
	svc := NewService(src, nil, nil, nil, UnknownRoleDeny, 0)

	got, err := svc.Aggregate(context.Background(), admin, Request{StartDate: "2026-03-01", EndDate: "2026-03-01"})
	require.NoError(t, err)
	assert.Equal(t, 16.0, got.Revenue)
	assert.EqualValues(t, 200, got.Impressions)
	assert.Empty(t, src.queries[0].Dimensions)
	assert.InDelta(t, 8.0, got.Profit, 1e-9)
}

func TestDailySortedByDate(t *testing.T) {
	src := &fakeRows{rows: []FlatRow{
		metricRow(map[string]string{"date": "2026-03-02"}, 1),
		metricRow(map[string]string{"date": "2026-03-01 00:00:00"}, 2),
	}}
	svc := NewService(src, nil, nil, nil, UnknownRoleDeny, 0)

	got, err := svc.Daily(context.Background(), admin, Request{StartDate: "2026-03-01", EndDate: "2026-03-02"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-03-01", got[0].Date)
	assert.Equal(t, "2026-03-02", got[1].Date)
}

func TestHierarchyAttachesLanderURLs(t *testing.T) {
	row := metricRow(map[string]string{"lander": "Promo"}, 1)
	row.LanderID = "l-1"
	src := &fakeRows{rows: []FlatRow{row}}
	svc := NewService(src, fakeLanders{"l-1": "https://promo.example.com"}, nil, nil, UnknownRoleDeny, 0)

	resp, err := svc.Hierarchy(context.Background(), admin, Request{Dimensions: []string{"lander"}, StartDate: "2026-03-01", EndDate: "2026-03-01"})
	require.NoError(t, err)
	assert.Equal(t, "https://promo.example.com", resp.Hierarchy["Promo"].LanderURL)
}

func TestHourlyDataUsesTimezoneWindow(t *testing.T) {
	src := &fakeRows{rows: []FlatRow{metricRow(map[string]string{"date": "2026-03-02", "hour": "00:00"}, 1)}}
	svc := NewService(src, nil, nil, nil, UnknownRoleDeny, 0)
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }

	rows, err := svc.HourlyData(context.Background(), admin, Request{
		Dimensions: []string{"date", "hour"},
		StartDate:  "2026-03-02",
		EndDate:    "2026-03-02",
		Timezone:   "Asia/Shanghai",
	})
	require.NoError(t, err)
	require.Len(t, src.hourly, 1)
	q := src.hourly[0]
	assert.Equal(t, 8, q.Offset)
	assert.Equal(t, []string{"date"}, q.Dimensions)
	assert.Equal(t, time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC), q.Window.Start)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-03-02", rows[0].Name)
	assert.True(t, rows[0].HasChild)
}

func TestHourlyHierarchyAndDataCacheSeparately(t *testing.T) {
	src := &fakeRows{rows: []FlatRow{metricRow(map[string]string{"date": "2026-03-02", "hour": "00:00"}, 1)}}
	svc := NewService(src, nil, newTestCache(t), nil, UnknownRoleDeny, 0)
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }
	req := Request{
		Dimensions: []string{"date", "hour"},
		StartDate:  "2026-03-02",
		EndDate:    "2026-03-02",
		Timezone:   "UTC",
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tree, err := svc.HourlyHierarchy(ctx, admin, req)
		require.NoError(t, err)
		require.Contains(t, tree.Hierarchy, "2026-03-02")

		rows, err := svc.HourlyData(ctx, admin, req)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "2026-03-02", rows[0].Name)
	}
	assert.Len(t, src.hourly, 2)
}

func TestHourlyRejectsUnknownTimezone(t *testing.T) {
	svc := NewService(&fakeRows{}, nil, nil, nil, UnknownRoleDeny, 0)
	_, err := svc.HourlyHierarchy(context.Background(), admin, Request{
		Dimensions: []string{"hour"},
		StartDate:  "2026-03-02",
		EndDate:    "2026-03-02",
		Timezone:   "Mars/Olympus",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDailyNarrowsToPath(t *testing.T) {
	src := &fakeRows{}
	svc := NewService(src, nil, nil, nil, UnknownRoleDeny, 0)
	path := []FilterPathEntry{{Dimension: "platform", Value: "Google"}, {Dimension: "offer", Value: "Shop"}}

	_, err := svc.Daily(context.Background(), admin, Request{StartDate: "2026-03-01", EndDate: "2026-03-07", Path: path})
	require.NoError(t, err)
	require.Len(t, src.queries, 1)
	assert.Equal(t, []string{"date"}, src.queries[0].Dimensions)
	assert.Equal(t, path, src.queries[0].Filters)
}
