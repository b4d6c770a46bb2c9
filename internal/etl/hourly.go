package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/cache"
	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/db"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/pkg/distlock"
	"github.com/JR-coderli/EFsafari/internal/timezone"
)

const (
	hourlyJobName   = "hourly"
	hourlyStatusTTL = 24 * time.Hour
)

// HourlyJob refreshes a rolling window of the hourly table. Stored rows are
// replaced only after the upstream fetch for the whole window succeeded.
type HourlyJob struct {
	Source  ReportSource
	Writer  HourlyWriter
	Status  *db.RedisStore
	Cache   *cache.Cache
	Lease   distlock.DistLock
	Config  config.HourlyJob
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry

	// RetryDelay is the pause before retrying a failed batch.
	RetryDelay time.Duration
	now        func() time.Time
}

func (j *HourlyJob) init() {
	if j.Logger == nil {
		j.Logger = zap.NewNop()
	}
	if j.Metrics == nil {
		j.Metrics = observability.NewNoOpRegistry()
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.Config.BatchSize <= 0 {
		j.Config.BatchSize = 500
	}
	if j.Config.BatchRetries <= 0 {
		j.Config.BatchRetries = 3
	}
}

// DefaultWindow is today in UTC up to the end of the current hour, or the
// last hours hours when hours > 0.
func (j *HourlyJob) DefaultWindow(hours int) timezone.Window {
	j.init()
	return timezone.Today(j.now(), hours)
}

// Refresh replaces the stored hourly rows inside w with a fresh upstream
// fetch. It returns ErrJobBusy when another run holds the lease.
func (j *HourlyJob) Refresh(ctx context.Context, w timezone.Window) (RunResult, error) {
	j.init()
	started := j.now()
	res := RunResult{RunID: uuid.NewString(), Job: hourlyJobName, Start: w.Start, End: w.End}
	logger := j.Logger.With(zap.String("run_id", res.RunID), zap.Time("start", w.Start), zap.Time("end", w.End))

	ctx, span := observability.GetTracer("etl").Start(ctx, "etl.hourly")
	span.SetAttributes(attribute.String("run_id", res.RunID), attribute.Int("hours", int(w.End.Sub(w.Start)/time.Hour)))
	defer span.End()

	if j.Lease != nil {
		ok, err := j.Lease.Acquire(ctx)
		if err != nil {
			return res, fmt.Errorf("acquire hourly lease: %w", err)
		}
		if !ok {
			return res, ErrJobBusy
		}
		defer func() {
			if err := j.Lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release hourly lease", zap.Error(err))
			}
		}()
	}

	err := j.refresh(ctx, w, &res, logger)
	res.Duration = j.now().Sub(started)
	j.Metrics.RecordETLDuration(hourlyJobName, res.Duration)
	if err != nil {
		res.Status = StatusFailed
		j.Metrics.IncrementETLRuns(hourlyJobName, StatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "hourly refresh failed")
		logger.Error("hourly refresh failed", zap.Error(err))
		return res, err
	}
	j.Metrics.IncrementETLRuns(hourlyJobName, res.Status)
	j.Metrics.SetETLRows(hourlyJobName, res.Rows)
	span.SetAttributes(attribute.Int("rows", res.Rows))
	j.publish(ctx, res, logger)
	if _, err := j.Cache.Invalidate(ctx, cache.HourlyPrefixes...); err != nil {
		logger.Warn("invalidate hourly cache", zap.Error(err))
	}
	logger.Info("hourly refresh complete",
		zap.Int("fetched", res.Fetched), zap.Int("rows", res.Rows),
		zap.Int("skipped", res.Skipped), zap.Duration("duration", res.Duration))
	return res, nil
}

func (j *HourlyJob) refresh(ctx context.Context, w timezone.Window, res *RunResult, logger *zap.Logger) error {
	// the upstream speaks its own timezone with inclusive bounds
	src := w.Shift(j.Config.SourceOffset)
	items, err := j.Source.FetchAllPages(ctx, src.Start, src.End.Add(-time.Second),
		j.Config.GroupBy, j.Config.Metrics, j.Config.PageSize, j.Config.MaxPages)
	if err != nil {
		return fmt.Errorf("fetch hourly report: %w", err)
	}
	res.Fetched = len(items)

	converted, skipped := ToHourlyRows(items, j.Config.SourceOffset)
	sampleRate := observability.GetSamplingRate()
	rows := converted[:0]
	for _, r := range converted {
		if w.Contains(r.ReportDate, int(r.ReportHour)) {
			rows = append(rows, r)
			continue
		}
		skipped++
		if observability.ShouldSample(sampleRate) {
			logger.Debug("row outside refresh window",
				zap.String("report_date", r.ReportDate.Format(models.DateLayout)), zap.Uint8("hour", r.ReportHour))
		}
	}
	res.Skipped = skipped

	// nothing is deleted unless the lease still covers this run
	if err := j.extendLease(ctx); err != nil {
		return err
	}
	if err := j.Writer.DeleteHourlyRange(ctx, w.Start, w.End); err != nil {
		return fmt.Errorf("clear hourly window: %w", err)
	}

	batches := chunk(rows, j.Config.BatchSize)
	for i, batch := range batches {
		err := j.insertWithRetry(ctx, batch, i, logger)
		if err == nil {
			res.Batches++
			res.Rows += len(batch)
			if i < len(batches)-1 {
				err = j.extendLease(ctx)
			}
		}
		if err != nil {
			logger.Error("hourly window partially written",
				zap.Int("batches_written", res.Batches), zap.Int("batches", len(batches)),
				zap.Int("rows_written", res.Rows), zap.Error(err))
			return fmt.Errorf("%w (%d of %d batches): %w", ErrPartialWindow, res.Batches, len(batches), err)
		}
	}
	res.Status = StatusSuccess
	if res.Rows == 0 {
		res.Status = StatusEmpty
	}
	return nil
}

func (j *HourlyJob) extendLease(ctx context.Context) error {
	if j.Lease == nil || j.Config.LeaseTTL <= 0 {
		return nil
	}
	if err := j.Lease.Extend(ctx, j.Config.LeaseTTL); err != nil {
		return fmt.Errorf("extend hourly lease: %w", err)
	}
	return nil
}

func (j *HourlyJob) insertWithRetry(ctx context.Context, batch []models.HourlyRow, n int, logger *zap.Logger) error {
	var err error
	for attempt := 1; attempt <= j.Config.BatchRetries; attempt++ {
		if err = j.Writer.InsertHourly(ctx, batch); err == nil {
			return nil
		}
		logger.Warn("hourly batch insert failed",
			zap.Int("batch", n), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < j.Config.BatchRetries && j.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(j.RetryDelay * time.Duration(attempt)):
			}
		}
	}
	return fmt.Errorf("insert hourly batch %d: %w", n, err)
}

func (j *HourlyJob) publish(ctx context.Context, res RunResult, logger *zap.Logger) {
	if j.Status == nil {
		return
	}
	st := db.ETLStatus{
		LastUpdate: j.now().UTC(),
		ReportDate: res.Start.Format(models.DateLayout),
		Rows:       res.Rows,
		RunID:      res.RunID,
		Status:     res.Status,
	}
	zones := j.Config.Timezones
	if len(zones) == 0 {
		zones = []string{"UTC"}
	}
	for _, tz := range zones {
		if err := j.Status.SetETLStatus(ctx, db.HourlyStatusPrefix+tz, st, hourlyStatusTTL); err != nil {
			logger.Warn("publish hourly status", zap.String("timezone", tz), zap.Error(err))
		}
	}
}
