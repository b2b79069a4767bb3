package models

import "time"

// Booking lifecycle statuses. Transitions between them are owned by the
// booking state machine; nothing else writes the status field.
const (
	BookingStatusPending    = "pending"
	BookingStatusConfirmed  = "confirmed"
	BookingStatusInProgress = "in_progress"
	BookingStatusCompleted  = "completed"
	BookingStatusCancelled  = "cancelled"
)

// Booking represents one reserved time slot between a player and a coach.
// Bookings are never physically deleted; cancellation is a status change so
// the audit trail and event replay stay intact.
type Booking struct {
	ID              string    `bson:"id" json:"id"`
	PlayerID        string    `bson:"player_id" json:"player_id"`
	CoachID         string    `bson:"coach_id" json:"coach_id"`
	StartAt         time.Time `bson:"start_at" json:"start_at"`                     // Absolute session start instant (UTC)
	EndAt           time.Time `bson:"end_at" json:"end_at"`                         // StartAt + duration, denormalized for overlap queries
	DurationMinutes int       `bson:"duration_minutes" json:"duration_minutes"`     // Always > 0
	Timezone        string    `bson:"timezone,omitempty" json:"timezone,omitempty"` // Display metadata only; interval math is in UTC
	Status          string    `bson:"status" json:"status"`
	Version         int       `bson:"version" json:"version"` // Optimistic concurrency stamp, bumped on every transition
	CancelReason    string    `bson:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// ActiveBookingStatuses are the statuses that hold a coach's slot. Cancelled
// and completed bookings never block a new reservation.
var ActiveBookingStatuses = []string{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusInProgress,
}

// IsActive reports whether the booking still occupies its slot.
func (b *Booking) IsActive() bool {
	switch b.Status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress:
		return true
	}
	return false
}

// Overlaps applies the half-open interval test [start, end) against the
// booking's own interval. Boundary-touching intervals do not overlap.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return start.Before(b.EndAt) && b.StartAt.Before(end)
}
