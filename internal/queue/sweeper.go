package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval = time.Hour
	DefaultDLQRetention  = 24 * time.Hour

	sweepTimeout = 2 * time.Minute
)

// Sweeper drops dead-lettered note jobs once they are older than the
// retention window. The runs they belonged to are already errored, so the
// messages only serve manual inspection.
type Sweeper struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets how often the dead letter queue is swept.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRetention sets how long dead-lettered jobs are kept.
func WithRetention(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(l *zap.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSweeper(purger DLQPurger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		purger:    purger,
		interval:  DefaultSweepInterval,
		retention: DefaultDLQRetention,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("dlq_sweeper_started",
		zap.Duration("interval", s.interval),
		zap.Duration("retention", s.retention),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("dlq_sweep_failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep purges expired dead-lettered jobs and returns how many were dropped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.purger == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := s.purger.PurgeOlderThan(ctx, s.retention)
	if n > 0 {
		s.logger.Info("dlq_sweep_purged", zap.Int("count", n))
	}
	if err != nil {
		return n, fmt.Errorf("dlq purge: %w", err)
	}
	return n, nil
}
