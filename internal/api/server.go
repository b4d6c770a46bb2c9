package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/db"
	"github.com/JR-coderli/EFsafari/internal/etl"
	"github.com/JR-coderli/EFsafari/internal/ledger"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/ratelimit"
	"github.com/JR-coderli/EFsafari/internal/reporting"
	"github.com/JR-coderli/EFsafari/internal/timezone"
)

// HourlyRefresher runs the hourly ETL on demand.
type HourlyRefresher interface {
	Refresh(ctx context.Context, w timezone.Window) (etl.RunResult, error)
	DefaultWindow(hours int) timezone.Window
}

// UserStore persists dashboard users.
type UserStore interface {
	db.UserLoader
	InsertUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u models.User) error
	DeleteUser(ctx context.Context, id string) error
}

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger      *zap.Logger
	Status      *db.RedisStore
	Users       *db.Directory
	UserStore   UserStore
	Reports     *reporting.Service
	Ledger      *ledger.Ledger
	Hourly      HourlyRefresher
	Limiter     *ratelimit.Limiter
	Metrics     observability.MetricsRegistry
	Config      config.Config
	TokenSecret []byte
	TokenTTL    time.Duration

	reloadMu sync.Mutex
	// refreshTimeout bounds a manually triggered hourly refresh.
	refreshTimeout time.Duration
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, status *db.RedisStore, users *db.Directory, userStore UserStore, reports *reporting.Service, l *ledger.Ledger, hourly HourlyRefresher, limiter *ratelimit.Limiter, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:         logger,
		Status:         status,
		Users:          users,
		UserStore:      userStore,
		Reports:        reports,
		Ledger:         l,
		Hourly:         hourly,
		Limiter:        limiter,
		Metrics:        metrics,
		Config:         cfg,
		TokenSecret:    []byte(cfg.TokenSecret),
		TokenTTL:       cfg.TokenTTL,
		refreshTimeout: cfg.JobTimeout,
	}
}

// Reload refreshes the user directory from Postgres.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.Users == nil {
		return errors.New("user directory unavailable")
	}
	return s.Users.Reload(ctx)
}
