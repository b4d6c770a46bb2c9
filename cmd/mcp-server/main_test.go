package main

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/ledger"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

type staticRows []reporting.FlatRow

func (s staticRows) Rows(context.Context, reporting.Query) ([]reporting.FlatRow, error) {
	return s, nil
}

func (s staticRows) HourlyRows(context.Context, reporting.HourlyQuery) ([]reporting.FlatRow, error) {
	return s, nil
}

func (s staticRows) Platforms(context.Context, time.Time, time.Time, reporting.Predicate) ([]string, error) {
	return nil, nil
}

func newTestTools(t *testing.T, user models.User) (*ReportTools, *ledger.MemoryStore) {
	t.Helper()
	rows := staticRows{
		{Values: map[string]string{"platform": "Mintegral", "offer": "Shop"}, Metrics: models.MetricTuple{Spend: 2, Revenue: 6}},
		{Values: map[string]string{"platform": "Google", "offer": "Shop"}, Metrics: models.MetricTuple{Spend: 1, Revenue: 1}},
	}
	store := ledger.NewMemoryStore()
	return &ReportTools{
		reports: reporting.NewService(rows, nil, nil, zap.NewNop(), reporting.UnknownRoleDeny, 0),
		ledger:  ledger.New(store, zap.NewNop(), nil, reporting.UnknownRoleDeny),
		user:    user,
		timeout: time.Second,
		logger:  zap.NewNop(),
	}, store
}

func TestGetHierarchy(t *testing.T) {
	tools, _ := newTestTools(t, models.User{ID: "u1", Role: models.RoleAdmin, Active: true})

	_, out, err := tools.GetHierarchy(context.Background(), nil, HierarchyInput{
		StartDate:  "2026-03-01",
		EndDate:    "2026-03-01",
		Dimensions: []string{"platform", "offer"},
	})
	require.NoError(t, err)
	resp, ok := out.(*reporting.HierarchyResponse)
	require.True(t, ok)
	assert.Len(t, resp.Hierarchy, 2)
	assert.InDelta(t, 4.0, resp.Hierarchy["Mintegral"].Derived.Profit, 1e-9)
}

func TestGetHierarchyRejectsBadInput(t *testing.T) {
	tools, _ := newTestTools(t, models.User{ID: "u1", Role: models.RoleAdmin, Active: true})

	_, _, err := tools.GetHierarchy(context.Background(), nil, HierarchyInput{StartDate: "2026-03-01", EndDate: "2026-03-01"})
	assert.ErrorIs(t, err, reporting.ErrInvalidRequest)
}

func TestGetDailyReportAppliesUserKeywords(t *testing.T) {
	tools, store := newTestTools(t, models.User{ID: "u2", Role: models.RoleOps02, Keywords: []string{"mintegral"}, Active: true})
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for media, spend := range map[string]int64{"Mintegral": 10, "Google": 5} {
		require.NoError(t, store.Insert(ctx, models.SpendRecord{
			Date: date, Media: media,
			SpendOriginal: decimal.NewFromInt(spend), SpendManual: decimal.Zero, SpendFinal: decimal.NewFromInt(spend),
		}))
	}

	_, out, err := tools.GetDailyReport(ctx, nil, DailyReportInput{StartDate: "2026-03-01", EndDate: "2026-03-01"})
	require.NoError(t, err)
	report, ok := out.(DailyReportOutput)
	require.True(t, ok)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, "Mintegral", report.Rows[0].Media)
	assert.True(t, report.Summary.SpendFinal.Equal(decimal.NewFromInt(10)))

	_, _, err = tools.GetDailyReport(ctx, nil, DailyReportInput{StartDate: "2026-03-02", EndDate: "2026-03-01"})
	assert.ErrorIs(t, err, ledger.ErrInvalidDate)
}
