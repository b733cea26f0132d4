package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredStore is a repository that can purge its expired rows.
type ExpiredStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Reaper periodically deletes expired sessions and one-time codes. The
// services never trust a row's presence alone, so a missed sweep only
// costs table space, not correctness.
type Reaper struct {
	sessions ExpiredStore
	codes    ExpiredStore
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewReaper(sessions, codes ExpiredStore, logger *slog.Logger, interval time.Duration) *Reaper {
	return &Reaper{
		sessions: sessions,
		codes:    codes,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval until the
// context is cancelled or Stop is called.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-r.stopCh:
			r.logger.Info("reaper stopped")
			return
		case <-ctx.Done():
			r.logger.Info("reaper context cancelled")
			return
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sessions, err := r.sessions.DeleteExpired(sweepCtx)
	if err != nil {
		r.logger.Error("failed to reap expired sessions", slog.Any("error", err))
	}

	codes, err := r.codes.DeleteExpired(sweepCtx)
	if err != nil {
		r.logger.Error("failed to reap expired one-time codes", slog.Any("error", err))
	}

	if sessions > 0 || codes > 0 {
		r.logger.Info("reaper sweep completed",
			slog.Int64("sessions_deleted", sessions),
			slog.Int64("codes_deleted", codes))
	}
}

// Stop signals the reaper to exit.
func (r *Reaper) Stop() {
	close(r.stopCh)
}
