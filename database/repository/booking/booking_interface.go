package bookingRepo

import (
	"context"
	"errors"
	"time"

	"coachly/models"
)

// Storage-level failures the service layer maps onto its own error kinds.
var (
	// ErrNotFound is returned when no booking matches the given id.
	ErrNotFound = errors.New("booking not found")
	// ErrOverlap is returned by CreateIfSlotFree when another active booking
	// holds an overlapping interval for the same coach.
	ErrOverlap = errors.New("overlapping active booking exists")
	// ErrVersionMismatch is returned by UpdateStatusCAS when the persisted
	// status or version no longer matches the caller's expectation.
	ErrVersionMismatch = errors.New("booking status or version mismatch")
)

// ListFilter narrows and pages a booking listing. Role decides which side of
// the booking the user id is matched against.
type ListFilter struct {
	UserID   string
	Role     string // "player" or "coach"
	Status   string // optional status filter
	Page     int    // 1-based
	PageSize int
}

// BookingRepository persists bookings and enforces the storage-side half of
// the concurrency contract: conditional writes and the overlap backstop.
type BookingRepository interface {
	// CreateIfSlotFree inserts the booking only if no active booking for the
	// same coach overlaps its interval. The overlap re-check and insert run
	// in one transaction so that of two concurrent requests for the same
	// slot exactly one commits.
	CreateIfSlotFree(ctx context.Context, booking *models.Booking) error

	GetByID(ctx context.Context, id string) (*models.Booking, error)

	// FindOverlapping returns active bookings for the coach whose intervals
	// overlap [start, end) under the half-open test.
	FindOverlapping(ctx context.Context, coachID string, start, end time.Time) ([]models.Booking, error)

	// UpdateStatusCAS flips the booking status with a compare-and-swap on
	// (status, version). Returns the updated booking, or ErrVersionMismatch
	// when the persisted state moved underneath the caller.
	UpdateStatusCAS(ctx context.Context, id, fromStatus, toStatus string, expectedVersion int, cancelReason string) (*models.Booking, error)

	List(ctx context.Context, f ListFilter) ([]models.Booking, int64, error)

	// FindStalePending returns pending bookings created before the cutoff,
	// candidates for the dead-state sweep when authorization never finished.
	FindStalePending(ctx context.Context, olderThan time.Time) ([]models.Booking, error)
}
