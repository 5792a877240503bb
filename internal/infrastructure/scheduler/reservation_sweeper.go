package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/infrastructure/cache"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
)

// sweepLockKey serializes the sweep across instances
const sweepLockKey = "reservation-sweep"

// ReservationExpirer expires lapsed holds
type ReservationExpirer interface {
	ExpireReservations(ctx context.Context) (*inventory.ExpiredReservationStats, error)
}

// SweepRecorder receives the outcome of every sweep that ran
type SweepRecorder interface {
	RecordReservationSweep(ctx context.Context, stats *inventory.ExpiredReservationStats, duration time.Duration)
}

// ReservationSweeperConfig holds configuration for the expiry sweeper
type ReservationSweeperConfig struct {
	// Interval is how often the sweep runs
	Interval time.Duration
	// LockTTL bounds how long one instance holds the sweep; a sweep
	// never runs longer than this
	LockTTL time.Duration
}

// Validate validates the configuration
func (c *ReservationSweeperConfig) Validate() error {
	if c.Interval <= 0 || c.LockTTL <= 0 {
		return fmt.Errorf("%w: interval %s, lock ttl %s", ErrInvalidConfig, c.Interval, c.LockTTL)
	}
	return nil
}

// ReservationSweeper periodically expires lapsed reservations. On each tick
// it takes the leader lock, so with several instances only one sweeps.
type ReservationSweeper struct {
	config   ReservationSweeperConfig
	expirer  ReservationExpirer
	locker   cache.Locker
	recorder SweepRecorder
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastStats *inventory.ExpiredReservationStats
}

// NewReservationSweeper creates a sweeper
func NewReservationSweeper(
	config ReservationSweeperConfig,
	expirer ReservationExpirer,
	locker cache.Locker,
	logger *zap.Logger,
) (*ReservationSweeper, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	return &ReservationSweeper{
		config:  config,
		expirer: expirer,
		locker:  locker,
		logger:  logger,
	}, nil
}

// SetRecorder sets where sweep outcomes are reported
func (s *ReservationSweeper) SetRecorder(recorder SweepRecorder) {
	s.recorder = recorder
}

// Start starts the sweep loop. The first sweep runs immediately so holds
// that lapsed while the service was down are released on boot.
func (s *ReservationSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Reservation sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("lock_ttl", s.config.LockTTL),
	)
	return nil
}

// Stop stops the sweep loop
func (s *ReservationSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reservation sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ReservationSweeper) runLoop(ctx context.Context) {
	defer s.wg.Done()

	s.sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ReservationSweeper) sweep(ctx context.Context) {
	if _, _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Reservation sweep failed", zap.Error(err))
	}
}

// RunOnce sweeps once if the leader lock is free. ran is false when another
// holder owns the lock.
func (s *ReservationSweeper) RunOnce(ctx context.Context) (stats *inventory.ExpiredReservationStats, ran bool, err error) {
	token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.config.LockTTL)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.logger.Debug("Reservation sweep skipped, lock held elsewhere")
		return nil, false, nil
	}
	defer func() {
		if uerr := s.locker.Unlock(context.WithoutCancel(ctx), sweepLockKey, token); uerr != nil {
			s.logger.Warn("Failed to release sweep lock", zap.Error(uerr))
		}
	}()

	sweepCtx, cancel := context.WithTimeout(ctx, s.config.LockTTL)
	defer cancel()

	started := time.Now()
	telemetry.WithProfilingLabels(sweepCtx, telemetry.JobLabels("reservation_sweep", "", ""), func(ctx context.Context) {
		stats, err = s.expirer.ExpireReservations(ctx)
	})
	if err != nil {
		return nil, true, err
	}

	s.mu.Lock()
	s.lastStats = stats
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordReservationSweep(ctx, stats, time.Since(started))
	}
	if stats.TotalExpired > 0 || stats.Failed > 0 {
		s.logger.Info("Reservation sweep finished",
			zap.Int("total", stats.TotalExpired),
			zap.Int("expired", stats.Expired),
			zap.Int("already_closed", stats.AlreadyClosed),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats, true, nil
}

// LastStats returns the result of the last sweep this instance ran
func (s *ReservationSweeper) LastStats() *inventory.ExpiredReservationStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats
}
