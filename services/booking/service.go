package booking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	bookingRepo "coachly/database/repository/booking"
	"coachly/models"
	"coachly/services/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateBooking runs the reservation saga: validate, pre-check availability
// and conflicts, persist the pending booking under the transactional overlap
// backstop, authorize payment, confirm. Authorization failure rolls the
// booking to cancelled so the slot frees immediately while the row stays for
// audit.
func (s *DefaultBookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	start := req.StartAt.UTC()
	duration := time.Duration(req.DurationMinutes) * time.Minute
	end := start.Add(duration)

	if err := s.Availability.WithinDeclared(ctx, req.CoachID, start, end); err != nil {
		return nil, err
	}
	if _, err := s.Conflicts.HasConflict(ctx, req.CoachID, start, duration); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	b := &models.Booking{
		ID:              uuid.New().String(),
		PlayerID:        req.PlayerID,
		CoachID:         req.CoachID,
		StartAt:         start,
		EndAt:           end,
		DurationMinutes: req.DurationMinutes,
		Timezone:        req.Timezone,
		Status:          models.BookingStatusPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.Repo.CreateIfSlotFree(ctx, b); err != nil {
		if err == bookingRepo.ErrOverlap {
			return nil, fmt.Errorf("%w: coach %s slot [%s, %s) was taken concurrently",
				ErrConflict, req.CoachID, start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("failed to persist booking: %w", err)
	}

	s.emit(ctx, models.EventBookingCreated, b, req.PlayerID, map[string]string{
		"coach_id": b.CoachID,
		"start_at": b.StartAt.Format(time.RFC3339),
	})

	intent, err := s.Payments.Authorize(ctx, b.ID, req.Amount, req.Currency)
	if err != nil {
		// Authorization failure is booking failure: release the slot. The
		// payment error itself propagates unmodified so callers can tell a
		// decline from a provider timeout.
		s.rollbackPending(b, "payment authorization failed")
		return nil, err
	}

	if ctx.Err() != nil {
		// The caller gave up after the hold was placed. Compensate so no
		// authorized payment stays orphaned.
		s.Logger.Warn("caller cancelled after authorization, compensating",
			zap.String("bookingId", b.ID), zap.String("intentId", intent.ID))
		voidCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if vErr := s.Payments.Void(voidCtx, intent.ID); vErr != nil {
			s.Logger.Error("compensating void failed",
				zap.String("intentId", intent.ID), zap.Error(vErr))
		}
		s.rollbackPending(b, "request cancelled during payment authorization")
		return nil, fmt.Errorf("booking creation cancelled: %w", ctx.Err())
	}

	confirmed, err := s.Machine.Transition(ctx, b, models.BookingStatusConfirmed, "")
	if err != nil {
		s.Logger.Error("failed to confirm booking after authorization",
			zap.String("bookingId", b.ID), zap.Error(err))
		voidCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if vErr := s.Payments.Void(voidCtx, intent.ID); vErr != nil {
			s.Logger.Error("compensating void failed",
				zap.String("intentId", intent.ID), zap.Error(vErr))
		}
		return nil, err
	}

	s.emit(ctx, models.EventPaymentAuthorized, confirmed, req.PlayerID, map[string]string{
		"intent_id": intent.ID,
		"amount":    strconv.FormatInt(intent.Amount, 10),
		"currency":  intent.Currency,
	})
	s.emit(ctx, models.EventBookingStatusChanged, confirmed, req.PlayerID, map[string]string{
		"from": models.BookingStatusPending,
		"to":   models.BookingStatusConfirmed,
	})

	if s.Scheduler != nil {
		if err := s.Scheduler.ScheduleSessionStart(ctx, confirmed.ID, confirmed.StartAt); err != nil {
			// The periodic sweep is the fallback trigger; do not fail the booking.
			s.Logger.Error("failed to schedule session start",
				zap.String("bookingId", confirmed.ID), zap.Error(err))
		}
	}

	s.Logger.Info("booking confirmed",
		zap.String("bookingId", confirmed.ID),
		zap.String("coachId", confirmed.CoachID),
		zap.String("playerId", confirmed.PlayerID),
		zap.Time("startAt", confirmed.StartAt))
	return &CreateBookingResult{Booking: confirmed, Intent: intent}, nil
}

// GetBooking returns the booking if the actor is a party to it (or platform/admin).
func (s *DefaultBookingService) GetBooking(ctx context.Context, bookingID, actorID, actorRole string) (*models.Booking, error) {
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeActor(b, actorID, actorRole); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBookings returns one page of the user's bookings, start time descending.
func (s *DefaultBookingService) ListBookings(ctx context.Context, userID, role, status string, page, pageSize int) (*ListBookingsResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrValidation)
	}
	if role != RolePlayer && role != RoleCoach {
		return nil, fmt.Errorf("%w: role must be %q or %q", ErrValidation, RolePlayer, RoleCoach)
	}
	if status != "" && !validStatus(status) {
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrValidation, status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	bookings, total, err := s.Repo.List(ctx, bookingRepo.ListFilter{
		UserID:   userID,
		Role:     role,
		Status:   status,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return &ListBookingsResult{Bookings: bookings, Total: total, Page: page, PageSize: pageSize}, nil
}

// TransitionStatus drives the lifecycle forward on behalf of an actor.
// Only the platform (the session-start scheduler) may begin a session;
// the coach or platform may complete one; cancellation routes through the
// cancellation policy.
func (s *DefaultBookingService) TransitionStatus(ctx context.Context, bookingID, target, actorID, actorRole string) (*models.Booking, error) {
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	switch target {
	case models.BookingStatusInProgress:
		return s.beginSession(ctx, b, actorID, actorRole)
	case models.BookingStatusCompleted:
		return s.completeSession(ctx, b, actorID, actorRole)
	case models.BookingStatusCancelled:
		res, err := s.CancelBooking(ctx, bookingID, actorID, actorRole, "cancelled via status transition")
		if err != nil {
			return nil, err
		}
		return res.Booking, nil
	default:
		return nil, fmt.Errorf("%w: target status %q cannot be requested directly", ErrInvalidTransition, target)
	}
}

func (s *DefaultBookingService) beginSession(ctx context.Context, b *models.Booking, actorID, actorRole string) (*models.Booking, error) {
	if actorRole != RolePlatform && actorRole != RoleAdmin {
		return nil, fmt.Errorf("%w: only the platform can start a session", ErrForbidden)
	}

	// A retried trigger after a capture timeout lands here with the booking
	// already in progress; finishing the capture is all that is left.
	if b.Status == models.BookingStatusInProgress {
		if err := s.ensureCaptured(ctx, b, actorID); err != nil {
			return nil, err
		}
		return b, nil
	}

	// Session start time is policy, not a hard gate: the trigger may fire
	// marginally early and clock skew is expected.
	if now := s.Clock.Now(); now.Before(b.StartAt) {
		s.Logger.Warn("starting session before booked start time",
			zap.String("bookingId", b.ID),
			zap.Duration("early", b.StartAt.Sub(now)))
	}

	updated, err := s.Machine.Transition(ctx, b, models.BookingStatusInProgress, "")
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.EventBookingStatusChanged, updated, actorID, map[string]string{
		"from": models.BookingStatusConfirmed,
		"to":   models.BookingStatusInProgress,
	})

	if err := s.ensureCaptured(ctx, updated, actorID); err != nil {
		// The transition already won; the trigger retries capture, which is
		// idempotent on the provider side.
		return nil, err
	}
	return updated, nil
}

func (s *DefaultBookingService) completeSession(ctx context.Context, b *models.Booking, actorID, actorRole string) (*models.Booking, error) {
	switch actorRole {
	case RoleCoach:
		if b.CoachID != actorID {
			return nil, fmt.Errorf("%w: coach %s does not own booking %s", ErrForbidden, actorID, b.ID)
		}
	case RolePlatform, RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: role %q cannot complete a session", ErrForbidden, actorRole)
	}

	updated, err := s.Machine.Transition(ctx, b, models.BookingStatusCompleted, "")
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.EventBookingStatusChanged, updated, actorID, map[string]string{
		"from": models.BookingStatusInProgress,
		"to":   models.BookingStatusCompleted,
	})
	s.Logger.Info("session completed", zap.String("bookingId", updated.ID))
	return updated, nil
}

// CancelBooking applies the cancellation policy, releases the slot and
// settles the payment: refund when captured, void when merely authorized.
// Cancelling an already-cancelled booking whose settlement never finished
// re-drives the settlement, so a provider failure on the first attempt stays
// retryable instead of stranding the funds.
func (s *DefaultBookingService) CancelBooking(ctx context.Context, bookingID, actorID, actorRole, reason string) (*CancelResult, error) {
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeActor(b, actorID, actorRole); err != nil {
		return nil, err
	}
	if b.Status == models.BookingStatusCancelled {
		return s.resettleCancelled(ctx, b, actorID)
	}
	if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: booking in status %s cannot be cancelled", ErrInvalidTransition, b.Status)
	}

	eligibility, err := s.Policy.Evaluate(b)
	if err != nil {
		return nil, err
	}

	updated, err := s.Machine.Transition(ctx, b, models.BookingStatusCancelled, reason)
	if err != nil {
		return nil, err
	}

	refund, err := s.settlePayment(ctx, updated, actorID, eligibility)
	if err != nil {
		// The booking stays cancelled; a retried cancel re-drives settlement.
		return nil, err
	}

	s.emit(ctx, models.EventBookingCancelled, updated, actorID, map[string]string{
		"reason":         reason,
		"refund_percent": strconv.Itoa(eligibility.RefundPercent),
	})
	s.Logger.Info("booking cancelled",
		zap.String("bookingId", updated.ID),
		zap.String("actorId", actorID),
		zap.Bool("fullRefund", eligibility.FullRefund))
	return &CancelResult{Booking: updated, Eligibility: eligibility, Refund: refund}, nil
}

// settlePayment releases the money side of a cancelled booking: refund of a
// captured intent per eligibility, void of an uncaptured hold. Intents
// already refunded, voided or failed need nothing, which makes settlement
// safe to re-run.
func (s *DefaultBookingService) settlePayment(ctx context.Context, b *models.Booking, actorID string, eligibility RefundEligibility) (*models.RefundResult, error) {
	intent, err := s.Payments.GetByBookingID(ctx, b.ID)
	if err == payment.ErrIntentNotFound {
		// A pending booking whose authorization never finished; nothing to release.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment intent for cancelled booking %s: %w", b.ID, err)
	}

	switch intent.Status {
	case models.IntentStatusCaptured:
		if eligibility.RefundPercent <= 0 {
			return nil, nil
		}
		amount := intent.Amount
		if !eligibility.FullRefund {
			amount = intent.Amount * int64(eligibility.RefundPercent) / 100
		}
		refund, err := s.Payments.Refund(ctx, intent.ID, amount)
		if err != nil {
			s.Logger.Error("refund failed for cancelled booking",
				zap.String("bookingId", b.ID),
				zap.String("intentId", intent.ID),
				zap.Error(err))
			return nil, err
		}
		s.emit(ctx, models.EventPaymentRefunded, b, actorID, map[string]string{
			"intent_id": intent.ID,
			"amount":    strconv.FormatInt(refund.Amount, 10),
			"full":      strconv.FormatBool(refund.Full),
		})
		return refund, nil
	case models.IntentStatusRequiresAction, models.IntentStatusAuthorized:
		if err := s.Payments.Void(ctx, intent.ID); err != nil {
			s.Logger.Error("void failed for cancelled booking",
				zap.String("bookingId", b.ID),
				zap.String("intentId", intent.ID),
				zap.Error(err))
			return nil, err
		}
		return nil, nil
	default:
		// refunded, voided or failed: already settled.
		return nil, nil
	}
}

// resettleCancelled re-drives the settlement of a booking that was cancelled
// but whose refund or void never went through. Eligibility is evaluated as of
// the recorded cancellation instant, so a delayed retry cannot change the
// refund the player was entitled to. A cancelled booking with nothing left to
// settle is a plain double cancel.
func (s *DefaultBookingService) resettleCancelled(ctx context.Context, b *models.Booking, actorID string) (*CancelResult, error) {
	intent, err := s.Payments.GetByBookingID(ctx, b.ID)
	if err == payment.ErrIntentNotFound {
		return nil, fmt.Errorf("%w: booking %s is already cancelled", ErrInvalidTransition, b.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment intent for cancelled booking %s: %w", b.ID, err)
	}
	switch intent.Status {
	case models.IntentStatusCaptured, models.IntentStatusRequiresAction, models.IntentStatusAuthorized:
	default:
		return nil, fmt.Errorf("%w: booking %s is already cancelled and settled", ErrInvalidTransition, b.ID)
	}

	// UpdatedAt was stamped by the cancel transition itself.
	eligibility, err := s.Policy.EvaluateFrom(b, b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	refund, err := s.settlePayment(ctx, b, actorID, eligibility)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, models.EventBookingCancelled, b, actorID, map[string]string{
		"reason":         b.CancelReason,
		"refund_percent": strconv.Itoa(eligibility.RefundPercent),
	})
	s.Logger.Info("recovered settlement for cancelled booking",
		zap.String("bookingId", b.ID),
		zap.String("intentId", intent.ID))
	return &CancelResult{Booking: b, Eligibility: eligibility, Refund: refund}, nil
}

// --- helpers ---

func (s *DefaultBookingService) validateCreate(req CreateBookingRequest) error {
	switch {
	case req.PlayerID == "":
		return fmt.Errorf("%w: missing player id", ErrValidation)
	case req.CoachID == "":
		return fmt.Errorf("%w: missing coach id", ErrValidation)
	case req.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	case req.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	case len(req.Currency) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrValidation)
	case req.StartAt.IsZero() || !req.StartAt.After(s.Clock.Now()):
		return fmt.Errorf("%w: start must be in the future", ErrValidation)
	}
	return nil
}

func (s *DefaultBookingService) getBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if err == bookingRepo.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch booking %s: %w", id, err)
	}
	return b, nil
}

// authorizeActor allows the booking's own player or coach, and any
// admin/platform actor.
func (s *DefaultBookingService) authorizeActor(b *models.Booking, actorID, actorRole string) error {
	switch actorRole {
	case RolePlayer:
		if b.PlayerID == actorID {
			return nil
		}
	case RoleCoach:
		if b.CoachID == actorID {
			return nil
		}
	case RoleAdmin, RolePlatform:
		return nil
	}
	return fmt.Errorf("%w: %s/%s on booking %s", ErrForbidden, actorRole, actorID, b.ID)
}

// ensureCaptured captures the booking's authorized intent; a no-op when the
// capture already happened.
func (s *DefaultBookingService) ensureCaptured(ctx context.Context, b *models.Booking, actorID string) error {
	intent, err := s.Payments.GetByBookingID(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("no payment intent for in-progress booking %s: %w", b.ID, err)
	}
	if intent.Status == models.IntentStatusCaptured {
		return nil
	}
	captured, err := s.Payments.Capture(ctx, intent.ID)
	if err != nil {
		return err
	}
	s.emit(ctx, models.EventPaymentCaptured, b, actorID, map[string]string{
		"intent_id": captured.ID,
		"amount":    strconv.FormatInt(captured.Amount, 10),
	})
	return nil
}

// rollbackPending frees the slot after a failed authorization. Runs on a
// fresh context: the caller's may already be dead, and an orphaned pending
// booking would hold the slot until the sweep catches it.
func (s *DefaultBookingService) rollbackPending(b *models.Booking, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cancelled, err := s.Machine.Transition(ctx, b, models.BookingStatusCancelled, reason)
	if err != nil {
		s.Logger.Error("failed to roll back pending booking; sweep will reclaim it",
			zap.String("bookingId", b.ID), zap.Error(err))
		return
	}
	s.emit(ctx, models.EventBookingCancelled, cancelled, "", map[string]string{"reason": reason})
}

// emit records a domain event; outbox write failures are logged, never fatal
// to the user-facing operation.
func (s *DefaultBookingService) emit(ctx context.Context, evtType string, b *models.Booking, actorID string, payload map[string]string) {
	if err := s.Events.Emit(ctx, evtType, b.ID, actorID, b.Version, payload); err != nil {
		s.Logger.Error("event emission failed",
			zap.String("type", evtType),
			zap.String("bookingId", b.ID),
			zap.Error(err))
	}
}

func validStatus(status string) bool {
	switch status {
	case models.BookingStatusPending, models.BookingStatusConfirmed,
		models.BookingStatusInProgress, models.BookingStatusCompleted,
		models.BookingStatusCancelled:
		return true
	}
	return false
}
