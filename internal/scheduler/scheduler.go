// Package scheduler runs the periodic ETL and ledger jobs. Jobs only run on
// the instance holding the owner lease, so several API servers can share
// one schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/etl"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/pkg/distlock"
)

// OwnerLease is the lease key electing the scheduling instance.
const OwnerLease = "scheduler-owner"

// Job is a named cron entry.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler wraps a cron runner with owner election. Each job runs at most
// once at a time; a tick arriving while the previous run is active is
// dropped.
type Scheduler struct {
	cron       *cron.Cron
	owner      distlock.DistLock
	leaseTTL   time.Duration
	jobTimeout time.Duration
	logger     *zap.Logger
	metrics    observability.MetricsRegistry

	mu      sync.Mutex
	owning  bool
	running map[string]bool

	stop chan struct{}
	done chan struct{}
}

// New returns a Scheduler electing itself through owner, which must have
// been created with leaseTTL.
func New(owner distlock.DistLock, leaseTTL, jobTimeout time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Scheduler{
		cron:       cron.New(),
		owner:      owner,
		leaseTTL:   leaseTTL,
		jobTimeout: jobTimeout,
		logger:     logger,
		metrics:    metrics,
		running:    make(map[string]bool),
	}
}

// Add registers job with the cron runner.
func (s *Scheduler) Add(job Job) error {
	if _, err := s.cron.AddFunc(job.Spec, func() { s.runJob(context.Background(), job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	s.logger.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

// Owner reports whether this instance currently holds the owner lease.
func (s *Scheduler) Owner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owning
}

// Start claims or renews the owner lease on a heartbeat and starts the cron
// runner. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.heartbeat(ctx)
	go func() {
		defer close(s.done)
		interval := s.leaseTTL / 3
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.heartbeat(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	s.cron.Start()
}

// Stop halts the heartbeat, waits for running jobs until ctx expires and
// gives up the owner lease.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.stop != nil {
		close(s.stop)
		<-s.done
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stopped with jobs still running")
	}
	s.mu.Lock()
	owning := s.owning
	s.owning = false
	s.mu.Unlock()
	if owning {
		if err := s.owner.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release owner lease", zap.Error(err))
		}
	}
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	s.mu.Lock()
	owning := s.owning
	s.mu.Unlock()

	if owning {
		err := s.owner.Extend(ctx, s.leaseTTL)
		if err == nil {
			return
		}
		s.logger.Warn("owner lease lost", zap.Error(err))
		s.setOwning(false)
	}
	ok, err := s.owner.Acquire(ctx)
	if err != nil {
		s.logger.Warn("owner lease acquire failed", zap.Error(err))
		return
	}
	if ok {
		s.logger.Info("scheduler owner lease acquired")
		s.setOwning(true)
	}
}

func (s *Scheduler) setOwning(v bool) {
	s.mu.Lock()
	s.owning = v
	s.mu.Unlock()
}

func (s *Scheduler) begin(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owning || s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) end(name string) {
	s.mu.Lock()
	delete(s.running, name)
	s.mu.Unlock()
}

// runJob executes job once if this instance is the owner and the job is
// not already running. It reports whether the job ran.
func (s *Scheduler) runJob(parent context.Context, job Job) bool {
	if !s.begin(job.Name) {
		return false
	}
	defer s.end(job.Name)

	ctx, cancel := context.WithTimeout(parent, s.jobTimeout)
	defer cancel()
	logger := s.logger.With(zap.String("job", job.Name))
	start := time.Now()
	err := job.Run(ctx)
	switch {
	case err == nil:
		logger.Info("scheduled job finished", zap.Duration("duration", time.Since(start)))
	case errors.Is(err, etl.ErrJobBusy):
		logger.Info("scheduled job skipped, already running elsewhere")
	default:
		s.metrics.IncrementETLRuns("scheduled_"+job.Name, "failure")
		logger.Error("scheduled job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
	}
	return true
}
