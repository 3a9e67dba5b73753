package uploads

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires upload sessions past their TTL. The sweep is
// idempotent, so overlapping runs from multiple instances are safe.
type Sweeper struct {
	log      *slog.Logger
	interval time.Duration
	sessions SessionStore
}

func NewSweeper(log *slog.Logger, interval time.Duration, sessions SessionStore) *Sweeper {
	return &Sweeper{
		log:      log,
		interval: interval,
		sessions: sessions,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			expired, err := s.sessions.ExpireSessions(ctx, time.Now().UTC())
			if err != nil {
				s.log.ErrorContext(ctx, "failed to expire sessions", slog.String("err", err.Error()))
				continue
			}

			if expired > 0 {
				s.log.InfoContext(ctx, "expired stale upload sessions", slog.Int64("count", expired))
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
