package services

import (
	"context"
	"time"

	"github.com/ttm0z/stock-analyzer-sub001/internal/logging"
)

type sessionSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper periodically removes long-expired session rows. It is
// housekeeping only; liveness never depends on it.
type Sweeper struct {
	sessions sessionSweeper
	interval time.Duration
	logger   logging.Logger
}

func NewSweeper(sessions sessionSweeper, interval time.Duration, l logging.Logger) *Sweeper {
	return &Sweeper{sessions: sessions, interval: interval, logger: l.With("module", "sweeper")}
}

// Run sweeps once per interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info(ctx, "session sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "Starting session sweeper", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping session sweeper...")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.sessions.Sweep(ctx)
	if err != nil {
		s.logger.Error(ctx, "session sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "expired sessions removed", "count", n)
	}
}
