// Package app wires the storage, reporting and ETL components shared by
// the HTTP server, the MCP server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/analytics"
	"github.com/JR-coderli/EFsafari/internal/cache"
	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/db"
	"github.com/JR-coderli/EFsafari/internal/etl"
	"github.com/JR-coderli/EFsafari/internal/ledger"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/pkg/distlock"
	"github.com/JR-coderli/EFsafari/internal/pkg/httpretry"
	"github.com/JR-coderli/EFsafari/internal/reporting"
	"github.com/JR-coderli/EFsafari/internal/upstream/clickflare"
	"github.com/JR-coderli/EFsafari/internal/upstream/mtg"
)

// Lease names of the ETL jobs.
const (
	DailyLease  = "daily-etl"
	HourlyLease = "hourly-etl"
)

// App holds the connected components. Redis is optional: without it the
// response cache is off and leases fall back to Postgres advisory locks.
// Daily and Hourly are nil when no ETL config could be loaded.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Metrics   observability.MetricsRegistry
	Postgres  *db.Postgres
	Redis     *db.RedisStore
	Warehouse *analytics.Warehouse
	Users     *db.Directory
	Cache     *cache.Cache
	Reports   *reporting.Service
	Ledger    *ledger.Ledger
	Daily     *etl.DailyJob
	Hourly    *etl.HourlyJob
}

// Open connects every backend named in cfg.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry) (*App, error) {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	a.Postgres = pg
	if err := pg.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.Users, err = db.NewDirectory(ctx, pg); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.RedisAddr != "" {
		store, err := db.InitRedis(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			a.Redis = store
		}
	}

	a.Warehouse, err = analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, cfg.ClickHouseDB, analytics.PoolConfig{
		MaxOpenConns:    cfg.CHMaxOpenConns,
		MaxIdleConns:    cfg.CHMaxIdleConns,
		ConnMaxLifetime: cfg.CHConnMaxLifetime,
		ConnMaxIdleTime: cfg.CHConnMaxIdleTime,
	}, metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect clickhouse: %w", err)
	}

	a.Cache = cache.New(a.Redis, cfg.CacheTTL, cfg.CacheRefreshBefore, cfg.CacheEnabled, logger, metrics)
	repo := reporting.NewRepository(a.Warehouse, reporting.QuerySettings{
		MaxMemoryBytes: cfg.QueryMaxMemoryBytes,
		MaxExecution:   cfg.QueryMaxExecution,
	})
	a.Reports = reporting.NewService(repo, a.Warehouse, a.Cache, logger, cfg.UnknownRolePolicy, cfg.QueryRowLimit)
	a.Ledger = ledger.New(ledger.NewClickHouseStore(a.Warehouse), logger, metrics, cfg.UnknownRolePolicy)

	if cfg.ETLConfigPath == "" {
		return a, nil
	}
	etlCfg, err := config.LoadETL(cfg.ETLConfigPath)
	if err != nil {
		logger.Warn("etl jobs disabled", zap.String("path", cfg.ETLConfigPath), zap.Error(err))
		return a, nil
	}
	a.buildJobs(etlCfg)
	return a, nil
}

// Lock returns a lease named key on the best available backend.
func (a *App) Lock(key string, ttl time.Duration) distlock.DistLock {
	if a.Redis != nil {
		return distlock.NewLock(a.Redis.Client, nil, key, ttl)
	}
	return distlock.NewLock(nil, a.Postgres.DB, key, ttl)
}

func (a *App) retry(cfg config.RetryPolicy, service string) httpretry.Options {
	return httpretry.Options{
		MaxAttempts:   cfg.MaxAttempts,
		BackoffFactor: cfg.BackoffFactor,
		StatusCodes:   cfg.StatusCodes,
		Logger:        a.Logger,
		OnRetry:       func() { a.Metrics.IncrementUpstreamRetries(service) },
	}
}

func (a *App) buildJobs(cfg config.ETL) {
	source := clickflare.NewClient(clickflare.Config{
		BaseURL:  cfg.Clickflare.BaseURL,
		Endpoint: cfg.Clickflare.Endpoint,
		APIKey:   cfg.Clickflare.APIKey,
		Timezone: cfg.Clickflare.Timezone,
		Retry:    a.retry(cfg.Retry, "clickflare"),
		Logger:   a.Logger,
	})

	var costs []etl.NamedCostSource
	if cfg.MTG.Enabled {
		for _, acct := range cfg.MTG.Accounts {
			costs = append(costs, etl.NamedCostSource{
				Name: acct.Name,
				Source: mtg.NewClient(mtg.Config{
					Account:         acct.Name,
					BaseURL:         cfg.MTG.BaseURL,
					Endpoint:        cfg.MTG.Endpoint,
					AccessKey:       acct.AccessKey,
					APIKey:          acct.APIKey,
					Timezone:        cfg.MTG.Timezone,
					DimensionOption: cfg.MTG.DimensionOption,
					TimeGranularity: cfg.MTG.TimeGranularity,
					PollAttempts:    cfg.MTG.PollAttempts,
					PollInterval:    cfg.MTG.PollInterval,
					PollTimeout:     cfg.MTG.PollTimeout,
					Retry:           a.retry(cfg.Retry, "mtg"),
					Logger:          a.Logger,
				}),
			})
		}
	}

	a.Daily = &etl.DailyJob{
		Source:  source,
		Costs:   costs,
		Merger:  etl.CostMerger{EligibleKeywords: cfg.MTG.MediaKeywords, FallbackMedia: cfg.MTG.FallbackMedia},
		Writer:  a.Warehouse,
		Status:  a.Redis,
		Cache:   a.Cache,
		Lease:   a.Lock(DailyLease, cfg.Daily.Timeout),
		Config:  cfg.Daily,
		Logger:  a.Logger,
		Metrics: a.Metrics,
	}
	a.Hourly = &etl.HourlyJob{
		Source:     source,
		Writer:     a.Warehouse,
		Status:     a.Redis,
		Cache:      a.Cache,
		Lease:      a.Lock(HourlyLease, cfg.Hourly.LeaseTTL),
		Config:     cfg.Hourly,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
		RetryDelay: 2 * time.Second,
	}
}

// Close releases every connection opened by Open.
func (a *App) Close() {
	if a.Warehouse != nil {
		a.Warehouse.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
