package cron

import (
	"context"
	"time"

	bookingRepo "coachly/database/repository/booking"
	"coachly/services/booking"

	"go.uber.org/zap"
)

// StalePendingSweeper reclaims pending bookings whose payment authorization
// never completed (the dead state left behind when the creating process died
// between insert and rollback). Cancelling them frees the slot.
type StalePendingSweeper struct {
	Repo     bookingRepo.BookingRepository
	Svc      booking.BookingService
	Logger   *zap.Logger
	Interval time.Duration
	MaxAge   time.Duration
}

func NewStalePendingSweeper(repo bookingRepo.BookingRepository, svc booking.BookingService, logger *zap.Logger) *StalePendingSweeper {
	return &StalePendingSweeper{
		Repo:     repo,
		Svc:      svc,
		Logger:   logger,
		Interval: time.Minute,
		MaxAge:   10 * time.Minute,
	}
}

// Run sweeps until the context is cancelled.
func (s *StalePendingSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.Info("stale pending sweeper started",
		zap.Duration("interval", s.Interval), zap.Duration("maxAge", s.MaxAge))
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("stale pending sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StalePendingSweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.MaxAge)
	stale, err := s.Repo.FindStalePending(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to fetch stale pending bookings", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	s.Logger.Info("reclaiming stale pending bookings", zap.Int("count", len(stale)))
	for i := range stale {
		b := &stale[i]
		_, err := s.Svc.CancelBooking(ctx, b.ID, "sweeper", booking.RolePlatform, "payment authorization never completed")
		if err != nil {
			// A racing transition or an in-flight authorization moved it; the
			// next pass re-evaluates.
			s.Logger.Warn("failed to reclaim pending booking",
				zap.String("bookingId", b.ID), zap.Error(err))
			continue
		}
		s.Logger.Info("reclaimed stale pending booking", zap.String("bookingId", b.ID))
	}
}
