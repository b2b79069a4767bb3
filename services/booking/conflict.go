package booking

import (
	"context"
	"fmt"
	"time"

	bookingRepo "coachly/database/repository/booking"
)

// ConflictChecker decides whether a candidate interval collides with an
// existing active booking for the coach.
type ConflictChecker interface {
	// HasConflict applies the half-open overlap test [start, start+duration)
	// against the coach's active bookings. It returns (true, ErrConflict)
	// when an overlap exists so callers can tell a business conflict from an
	// infrastructure failure.
	HasConflict(ctx context.Context, coachID string, start time.Time, duration time.Duration) (bool, error)
}

// DefaultConflictChecker implements ConflictChecker over the booking store.
// This is the fast pre-check; the storage layer re-runs the same test inside
// the create transaction as the ultimate backstop.
type DefaultConflictChecker struct {
	Repo bookingRepo.BookingRepository
}

func NewConflictChecker(repo bookingRepo.BookingRepository) *DefaultConflictChecker {
	return &DefaultConflictChecker{Repo: repo}
}

func (c *DefaultConflictChecker) HasConflict(ctx context.Context, coachID string, start time.Time, duration time.Duration) (bool, error) {
	end := start.Add(duration)
	overlapping, err := c.Repo.FindOverlapping(ctx, coachID, start, end)
	if err != nil {
		return false, fmt.Errorf("conflict check failed for coach %s: %w", coachID, err)
	}
	if len(overlapping) > 0 {
		return true, fmt.Errorf("%w: coach %s has %d overlapping booking(s)", ErrConflict, coachID, len(overlapping))
	}
	return false, nil
}
