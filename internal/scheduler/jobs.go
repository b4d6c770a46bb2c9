package scheduler

import (
	"context"
	"time"

	"github.com/JR-coderli/EFsafari/internal/etl"
	"github.com/JR-coderli/EFsafari/internal/ledger"
	"github.com/JR-coderli/EFsafari/internal/models"
)

// LedgerSync rebuilds yesterday's spend ledger rows as the system user.
func LedgerSync(l *ledger.Ledger, now func() time.Time) func(context.Context) error {
	return func(ctx context.Context) error {
		today := now().UTC().Truncate(24 * time.Hour)
		yesterday := today.AddDate(0, 0, -1)
		_, err := l.Sync(ctx, models.SystemUser(), yesterday, yesterday)
		return err
	}
}

// HourlyRefresh refreshes today's hourly report.
func HourlyRefresh(j *etl.HourlyJob) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := j.Refresh(ctx, j.DefaultWindow(0))
		return err
	}
}

// DailyReport reloads the main fact table for the job's default date.
func DailyReport(j *etl.DailyJob) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := j.Run(ctx, j.DefaultDate())
		return err
	}
}
