package booking

import (
	"context"
	"fmt"

	bookingRepo "coachly/database/repository/booking"
	"coachly/models"
)

// transitions is the legal lifecycle graph. A session already underway or
// finished cannot be cancelled, only refunded/disputed through a separate
// path outside this core.
var transitions = map[string][]string{
	models.BookingStatusPending:    {models.BookingStatusConfirmed, models.BookingStatusCancelled},
	models.BookingStatusConfirmed:  {models.BookingStatusInProgress, models.BookingStatusCancelled},
	models.BookingStatusInProgress: {models.BookingStatusCompleted},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine applies lifecycle transitions with optimistic concurrency.
// Every write is conditional on the status and version the caller read, so
// two racing transitions against one booking resolve to exactly one winner.
type StateMachine struct {
	Repo bookingRepo.BookingRepository
}

func NewStateMachine(repo bookingRepo.BookingRepository) *StateMachine {
	return &StateMachine{Repo: repo}
}

// Transition moves the booking to the target status. The booking passed in
// carries the expected (status, version) pair; a mismatch against the
// persisted row returns ErrStaleState so the caller can re-read and retry.
func (m *StateMachine) Transition(ctx context.Context, b *models.Booking, target, cancelReason string) (*models.Booking, error) {
	if !CanTransition(b.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, target)
	}

	updated, err := m.Repo.UpdateStatusCAS(ctx, b.ID, b.Status, target, b.Version, cancelReason)
	if err != nil {
		switch err {
		case bookingRepo.ErrNotFound:
			return nil, ErrBookingNotFound
		case bookingRepo.ErrVersionMismatch:
			return nil, fmt.Errorf("%w: booking %s expected %s@v%d", ErrStaleState, b.ID, b.Status, b.Version)
		}
		return nil, err
	}
	return updated, nil
}
