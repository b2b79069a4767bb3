package paymentRepo

import (
	"context"
	"errors"

	"coachly/models"
)

var (
	// ErrNotFound is returned when no payment intent matches the given id.
	ErrNotFound = errors.New("payment intent not found")
	// ErrStatusConflict is returned when a status mark does not match the
	// intent's persisted status (the intent moved underneath the caller).
	ErrStatusConflict = errors.New("payment intent status conflict")
)

// PaymentRepository persists payment intents. Status marks are conditional
// writes keyed on the expected current status so that concurrent coordinator
// calls serialize per intent.
type PaymentRepository interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	GetByID(ctx context.Context, id string) (*models.PaymentIntent, error)

	// GetActiveByBookingID returns the booking's current intent, skipping
	// failed and voided intents that were superseded.
	GetActiveByBookingID(ctx context.Context, bookingID string) (*models.PaymentIntent, error)

	// MarkAuthorized moves requires_action -> authorized and records the
	// provider correlation id.
	MarkAuthorized(ctx context.Context, id, providerID string) error
	// MarkCaptured moves authorized -> captured.
	MarkCaptured(ctx context.Context, id string) error
	// MarkRefunded moves captured -> refunded with the refunded amount.
	MarkRefunded(ctx context.Context, id string, amount int64, providerRefundID string) error
	// MarkVoided moves requires_action/authorized -> voided (authorization released).
	MarkVoided(ctx context.Context, id string) error
	// MarkFailed moves requires_action -> failed with the decline reason.
	MarkFailed(ctx context.Context, id, reason string) error
}
