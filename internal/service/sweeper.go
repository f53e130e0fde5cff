package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/repository"
)

const (
	minSweepInterval = 10 * time.Minute
	maxSweepInterval = 7 * 24 * time.Hour
)

// SweeperService transitions overdue promotion records to expired on a
// fixed interval. Expiry is record-side only: the platform object carries
// its own end date and lapses on its own.
type SweeperService struct {
	repos  *repository.Repositories
	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewSweeperService creates a new expiry sweeper
func NewSweeperService(repos *repository.Repositories, logger *zap.Logger) *SweeperService {
	return &SweeperService{
		repos:  repos,
		logger: logger,
	}
}

// SweepExpiredOnce runs a single sweep pass. Concurrent calls are
// collapsed: a pass that finds one in flight returns immediately.
func (s *SweeperService) SweepExpiredOnce(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("Expiry sweep already in progress, skipping")
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	n, err := s.repos.Promotion.ExpireOverdue(ctx, start)
	if err != nil {
		s.logger.Error("Expiry sweep failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Expired overdue promotion records",
			zap.Int64("count", n),
			zap.Duration("took", time.Since(start)),
		)
	}
	return n, nil
}

// RunLoop sweeps immediately and then on every tick until ctx is
// cancelled. The interval is clamped to [10m, 7d].
func (s *SweeperService) RunLoop(ctx context.Context, interval time.Duration) {
	interval = ClampSweepInterval(interval)
	s.logger.Info("Starting expiry sweep loop", zap.Duration("interval", interval))

	if _, err := s.SweepExpiredOnce(ctx); err != nil {
		s.logger.Error("Initial expiry sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping expiry sweep loop")
			return
		case <-ticker.C:
			if _, err := s.SweepExpiredOnce(ctx); err != nil {
				s.logger.Error("Scheduled expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// ClampSweepInterval bounds a configured sweep interval to sane limits
func ClampSweepInterval(interval time.Duration) time.Duration {
	if interval < minSweepInterval {
		return minSweepInterval
	}
	if interval > maxSweepInterval {
		return maxSweepInterval
	}
	return interval
}
