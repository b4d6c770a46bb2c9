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
	"github.com/JR-coderli/EFsafari/internal/upstream/clickflare"
)

const dailyJobName = "daily"

// DailyJob rebuilds one report date of the main fact table: two report
// passes merged for lander identity, secondary cost merged in, then the
// date's rows replaced.
type DailyJob struct {
	Source  ReportSource
	Costs   []NamedCostSource
	Merger  CostMerger
	Writer  FactWriter
	Status  *db.RedisStore
	Cache   *cache.Cache
	Lease   distlock.DistLock
	Config  config.DailyJob
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry

	now func() time.Time
}

func (j *DailyJob) init() {
	if j.Logger == nil {
		j.Logger = zap.NewNop()
	}
	if j.Metrics == nil {
		j.Metrics = observability.NewNoOpRegistry()
	}
	if j.now == nil {
		j.now = time.Now
	}
}

// DefaultDate returns the report date DateOffsetDays before today (UTC).
func (j *DailyJob) DefaultDate() time.Time {
	j.init()
	now := j.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -j.Config.DateOffsetDays)
}

// Run loads date. The stored rows for date are only deleted once every
// fetch needed to rebuild them has succeeded.
func (j *DailyJob) Run(ctx context.Context, date time.Time) (RunResult, error) {
	j.init()
	started := j.now()
	res := RunResult{RunID: uuid.NewString(), Job: dailyJobName, ReportDate: date.Format(models.DateLayout)}
	logger := j.Logger.With(zap.String("run_id", res.RunID), zap.String("report_date", res.ReportDate))

	ctx, span := observability.GetTracer("etl").Start(ctx, "etl.daily")
	span.SetAttributes(attribute.String("run_id", res.RunID), attribute.String("report_date", res.ReportDate))
	defer span.End()

	if j.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Config.Timeout)
		defer cancel()
	}

	if j.Lease != nil {
		ok, err := j.Lease.Acquire(ctx)
		if err != nil {
			return res, fmt.Errorf("acquire daily lease: %w", err)
		}
		if !ok {
			return res, ErrJobBusy
		}
		defer func() {
			if err := j.Lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release daily lease", zap.Error(err))
			}
		}()
	}

	err := j.run(ctx, date, &res, logger)
	res.Duration = j.now().Sub(started)
	j.Metrics.RecordETLDuration(dailyJobName, res.Duration)
	if err != nil {
		res.Status = StatusFailed
		j.Metrics.IncrementETLRuns(dailyJobName, StatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "daily etl failed")
		logger.Error("daily etl failed", zap.Error(err))
		return res, err
	}
	j.Metrics.IncrementETLRuns(dailyJobName, res.Status)
	j.Metrics.SetETLRows(dailyJobName, res.Rows)
	span.SetAttributes(attribute.Int("rows", res.Rows), attribute.String("status", res.Status))

	if j.Status != nil {
		st := db.ETLStatus{
			LastUpdate: j.now().UTC(),
			ReportDate: res.ReportDate,
			Rows:       res.Rows,
			RunID:      res.RunID,
			Status:     res.Status,
		}
		if err := j.Status.SetETLStatus(ctx, db.ETLStatusKey, st, 0); err != nil {
			logger.Warn("publish etl status", zap.Error(err))
		}
	}
	if n, err := j.Cache.Invalidate(ctx, cache.DataPrefixes...); err != nil {
		logger.Warn("invalidate data cache", zap.Error(err))
	} else if n > 0 {
		logger.Info("invalidated cached responses", zap.Int("keys", n))
	}
	logger.Info("daily etl complete",
		zap.Int("fetched", res.Fetched), zap.Int("rows", res.Rows),
		zap.Int("matched", res.Matched), zap.Int("synthesized", res.Synthesized),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (j *DailyJob) run(ctx context.Context, date time.Time, res *RunResult, logger *zap.Logger) error {
	start := date
	end := date.Add(24*time.Hour - time.Second)

	pass1, err := j.Source.FetchAllPages(ctx, start, end, j.Config.GroupBy, j.Config.Metrics, j.Config.PageSize, j.Config.MaxPages)
	if err != nil {
		return fmt.Errorf("fetch report: %w", err)
	}
	res.Fetched = len(pass1)

	var pass2 []clickflare.Item
	if len(j.Config.GroupByPass2) > 0 {
		pass2, err = j.Source.FetchAllPages(ctx, start, end, j.Config.GroupByPass2, j.Config.MetricsPass2, j.Config.PageSize, j.Config.MaxPages)
		if err != nil {
			// lander identity is enrichment only
			logger.Warn("lander pass failed, continuing without landers", zap.Error(err))
			pass2 = nil
		}
	}

	rows, skipped := ToFactRows(MergePasses(pass1, pass2), j.Config.ExcludeSpendMedia, j.Config.MediaSource)
	res.Skipped = skipped

	costs := j.fetchCosts(ctx, date, res, logger)
	if len(costs) > 0 {
		merged := j.Merger.Merge(rows, costs)
		rows = merged.Rows
		res.Matched = merged.Matched
		res.Synthesized = merged.Synthesized
		logger.Info("merged secondary cost",
			zap.Int("cost_rows", len(costs)), zap.Int("matched", merged.Matched),
			zap.Int("synthesized", merged.Synthesized), zap.Int("skipped", merged.Skipped))
	}

	if len(rows) == 0 {
		// an empty upstream day never wipes stored data
		res.Status = StatusEmpty
		logger.Warn("no rows for report date, keeping stored data")
		return nil
	}

	if err := j.Writer.DeleteFacts(ctx, date); err != nil {
		return fmt.Errorf("clear report date: %w", err)
	}
	for i, batch := range chunk(rows, j.Config.BatchSize) {
		if err := j.Writer.InsertFacts(ctx, batch); err != nil {
			return fmt.Errorf("insert batch %d: %w", i, err)
		}
		res.Batches++
		res.Rows += len(batch)
	}
	res.Status = StatusSuccess
	return nil
}

// fetchCosts collects cost rows from every account. A failed account is
// recorded and skipped; its rows keep their primary spend.
func (j *DailyJob) fetchCosts(ctx context.Context, date time.Time, res *RunResult, logger *zap.Logger) []models.CostRow {
	if len(j.Costs) == 0 {
		return nil
	}
	res.Accounts = make(map[string]string, len(j.Costs))
	var all []models.CostRow
	for _, c := range j.Costs {
		rows, err := c.Source.FetchCostRows(ctx, date)
		if err != nil {
			res.Accounts[c.Name] = StatusFailed
			logger.Warn("cost fetch failed", zap.String("account", c.Name), zap.Error(err))
			continue
		}
		res.Accounts[c.Name] = StatusSuccess
		all = append(all, rows...)
	}
	return all
}
