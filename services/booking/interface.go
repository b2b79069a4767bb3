package booking

import (
	"context"
	"time"

	bookingRepo "coachly/database/repository/booking"
	"coachly/models"
	"coachly/services/event"
	"coachly/services/payment"

	"go.uber.org/zap"
)

// Actor roles the façade recognizes. "platform" is the internal actor used
// by the scheduler worker; it never arrives from an end-user token.
const (
	RolePlayer   = "player"
	RoleCoach    = "coach"
	RoleAdmin    = "admin"
	RolePlatform = "platform"
)

// SessionScheduler enqueues the deferred confirmed -> in_progress transition
// to fire at session start.
type SessionScheduler interface {
	ScheduleSessionStart(ctx context.Context, bookingID string, at time.Time) error
}

// CreateBookingRequest carries everything needed to reserve and pay for a slot.
type CreateBookingRequest struct {
	PlayerID        string    `json:"player_id"`
	CoachID         string    `json:"coach_id"`
	StartAt         time.Time `json:"start_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Timezone        string    `json:"timezone"`
	Amount          int64     `json:"amount"`   // minor units
	Currency        string    `json:"currency"` // ISO 4217, lower or upper case
}

// CreateBookingResult is returned once the booking is confirmed and its
// payment authorized.
type CreateBookingResult struct {
	Booking *models.Booking       `json:"booking"`
	Intent  *models.PaymentIntent `json:"payment_intent"`
}

// CancelResult reports the cancellation outcome, including the refund
// eligibility the policy computed and the refund actually issued (nil when
// nothing had been captured).
type CancelResult struct {
	Booking     *models.Booking      `json:"booking"`
	Eligibility RefundEligibility    `json:"eligibility"`
	Refund      *models.RefundResult `json:"refund,omitempty"`
}

// ListBookingsResult is one page of bookings ordered by start time descending.
type ListBookingsResult struct {
	Bookings []models.Booking `json:"bookings"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// BookingService is the public façade over conflict checking, the lifecycle
// state machine, payment coordination and event emission.
type BookingService interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error)
	GetBooking(ctx context.Context, bookingID, actorID, actorRole string) (*models.Booking, error)
	ListBookings(ctx context.Context, userID, role, status string, page, pageSize int) (*ListBookingsResult, error)
	TransitionStatus(ctx context.Context, bookingID, target, actorID, actorRole string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, actorID, actorRole, reason string) (*CancelResult, error)
}

// DefaultBookingService implements BookingService.
type DefaultBookingService struct {
	Repo         bookingRepo.BookingRepository
	Availability AvailabilityChecker
	Conflicts    ConflictChecker
	Machine      *StateMachine
	Payments     payment.Coordinator
	Events       event.Emitter
	Scheduler    SessionScheduler
	Policy       *CancellationPolicy
	Clock        Clock
	Logger       *zap.Logger
}
