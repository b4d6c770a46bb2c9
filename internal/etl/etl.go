// Package etl loads upstream report data into the warehouse: the daily
// fact table with secondary cost merged in, and the rolling hourly table.
package etl

import (
	"context"
	"errors"
	"time"

	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/upstream/clickflare"
)

// ErrJobBusy is returned when another holder owns the job's lease.
var ErrJobBusy = errors.New("etl job already running")

// ErrPartialWindow is returned when a refresh stops after clearing its
// window, leaving only some of the fresh rows written.
var ErrPartialWindow = errors.New("hourly window partially written")

// ReportSource fetches report items for an inclusive time range.
type ReportSource interface {
	FetchAllPages(ctx context.Context, start, end time.Time, groupBy, metrics []string, pageSize, maxPages int) ([]clickflare.Item, error)
}

// CostSource fetches secondary cost rows for a report date.
type CostSource interface {
	FetchCostRows(ctx context.Context, date time.Time) ([]models.CostRow, error)
}

// NamedCostSource is a cost source for one upstream account.
type NamedCostSource struct {
	Name   string
	Source CostSource
}

// FactWriter replaces the daily fact rows of a report date.
type FactWriter interface {
	DeleteFacts(ctx context.Context, date time.Time) error
	InsertFacts(ctx context.Context, rows []models.FactRow) error
}

// HourlyWriter replaces hourly rows inside a UTC range.
type HourlyWriter interface {
	DeleteHourlyRange(ctx context.Context, start, end time.Time) error
	InsertHourly(ctx context.Context, rows []models.HourlyRow) error
}

// Run outcomes recorded in metrics and status.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusEmpty   = "empty"
)

// RunResult summarises one job run.
type RunResult struct {
	RunID       string            `json:"run_id"`
	Job         string            `json:"job"`
	ReportDate  string            `json:"report_date,omitempty"`
	Start       time.Time         `json:"start,omitempty"`
	End         time.Time         `json:"end,omitempty"`
	Status      string            `json:"status"`
	Fetched     int               `json:"fetched"`
	Rows        int               `json:"rows"`
	Skipped     int               `json:"skipped"`
	Batches     int               `json:"batches,omitempty"`
	Matched     int               `json:"matched,omitempty"`
	Synthesized int               `json:"synthesized,omitempty"`
	Accounts    map[string]string `json:"accounts,omitempty"`
	Duration    time.Duration     `json:"duration"`
}

func chunk[T any](rows []T, size int) [][]T {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]T
	for size > 0 && len(rows) > 0 {
		n := min(size, len(rows))
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	return out
}
