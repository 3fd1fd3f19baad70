package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal/logging"
)

// DefaultSweepInterval is used when NewSweeper gets a non-positive interval.
const DefaultSweepInterval = time.Hour

// Pruner deletes expired records. *Manager implements it.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Sweeper prunes expired records periodically.
type Sweeper struct {
	p        Pruner
	interval time.Duration
	log      logging.Logger
	// afterSweep observes completed sweeps in tests.
	afterSweep func(int64, error)
}

func NewSweeper(p Pruner, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{p: p, interval: interval, log: logging.New(logger).With("component", "refresh_sweeper")}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.p.Prune(ctx)
	switch {
	case err != nil && ctx.Err() == nil:
		s.log.Warn(ctx, "prune failed", "error", err)
	case n > 0:
		s.log.Info(ctx, "pruned expired refresh tokens", "count", n)
	}
	if s.afterSweep != nil {
		s.afterSweep(n, err)
	}
}
