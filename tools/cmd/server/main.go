package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/api"
	"github.com/JR-coderli/EFsafari/internal/app"
	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/ratelimit"
	"github.com/JR-coderli/EFsafari/internal/scheduler"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET must be set")
	}

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, observability.TracingConfig{
			ServiceName: cfg.ServiceName,
			Version:     version,
			Endpoint:    cfg.TempoEndpoint,
			SampleRate:  cfg.TracingSampleRate,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	a, err := app.Open(ctx, cfg, logger, metricsRegistry)
	if err != nil {
		return err
	}
	defer a.Close()

	limiter := ratelimit.New(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, metricsRegistry)

	srvDeps := api.NewServer(logger, a.Redis, a.Users, a.Postgres, a.Reports, a.Ledger, nil, limiter, metricsRegistry, cfg)
	if a.Hourly != nil {
		srvDeps.Hourly = a.Hourly
	}

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = startScheduler(ctx, a, logger, metricsRegistry)
		if err != nil {
			return err
		}
	}

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(srvDeps.Router())

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(handler, cfg.ServiceName),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Dashboard API running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srvDeps.Reload(ctx); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

func startScheduler(ctx context.Context, a *app.App, logger *zap.Logger, metrics observability.MetricsRegistry) (*scheduler.Scheduler, error) {
	cfg := a.Config
	owner := a.Lock(scheduler.OwnerLease, cfg.SchedulerLeaseTTL)
	sched := scheduler.New(owner, cfg.SchedulerLeaseTTL, cfg.JobTimeout, logger, metrics)

	jobs := []scheduler.Job{
		{Name: "ledger_sync", Spec: cfg.LedgerSyncSpec, Run: scheduler.LedgerSync(a.Ledger, time.Now)},
	}
	if a.Hourly != nil {
		jobs = append(jobs, scheduler.Job{Name: "hourly_etl", Spec: cfg.HourlyETLSpec, Run: scheduler.HourlyRefresh(a.Hourly)})
	}
	if a.Daily != nil {
		jobs = append(jobs, scheduler.Job{Name: "daily_etl", Spec: cfg.DailyETLSpec, Run: scheduler.DailyReport(a.Daily)})
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	sched.Start(ctx)
	return sched, nil
}
