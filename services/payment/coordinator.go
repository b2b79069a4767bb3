package payment

import (
	"context"
	"fmt"
	"time"

	paymentRepo "coachly/database/repository/payment"
	"coachly/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Coordinator orchestrates the escrow lifecycle against the payment
// provider, keyed by booking. Payment actions are only ever triggered by
// booking transitions; nothing mutates an intent independently.
type Coordinator interface {
	// Authorize opens a manual-capture intent and confirms it with the
	// provider. The intent reaches authorized only after the provider
	// confirms the hold, never optimistically.
	Authorize(ctx context.Context, bookingID string, amount int64, currency string) (*models.PaymentIntent, error)

	// Capture moves held funds. Idempotent: capturing an already-captured
	// intent returns the existing result, so retries after a timeout are safe.
	Capture(ctx context.Context, intentID string) (*models.PaymentIntent, error)

	// Refund returns captured funds. amount <= 0 means a full refund. A
	// refund is terminal; partial-then-another-partial is not supported.
	Refund(ctx context.Context, intentID string, amount int64) (*models.RefundResult, error)

	// Void releases an authorization that was never captured.
	Void(ctx context.Context, intentID string) error

	GetByBookingID(ctx context.Context, bookingID string) (*models.PaymentIntent, error)
}

// DefaultCoordinator implements Coordinator.
type DefaultCoordinator struct {
	Repo        paymentRepo.PaymentRepository
	Gateway     ProviderGateway
	Logger      *zap.Logger
	MaxAttempts int
	CallTimeout time.Duration
}

func NewCoordinator(repo paymentRepo.PaymentRepository, gateway ProviderGateway, logger *zap.Logger, maxAttempts int, callTimeout time.Duration) *DefaultCoordinator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &DefaultCoordinator{
		Repo:        repo,
		Gateway:     gateway,
		Logger:      logger,
		MaxAttempts: maxAttempts,
		CallTimeout: callTimeout,
	}
}

func (c *DefaultCoordinator) Authorize(ctx context.Context, bookingID string, amount int64, currency string) (*models.PaymentIntent, error) {
	now := time.Now().UTC()
	intent := &models.PaymentIntent{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		Status:    models.IntentStatusRequiresAction,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Repo.Create(ctx, intent); err != nil {
		return nil, err
	}

	log := c.Logger.With(
		zap.String("bookingId", bookingID),
		zap.String("intentId", intent.ID))

	var providerID string
	err := withRetry(ctx, log, "create intent", c.MaxAttempts, c.CallTimeout, func(ctx context.Context) error {
		id, err := c.Gateway.CreateIntent(ctx, amount, currency, "pi-create-"+intent.ID, map[string]string{
			"booking_id": bookingID,
			"intent_id":  intent.ID,
		})
		if err != nil {
			return err
		}
		providerID = id
		return nil
	})
	if err != nil {
		c.failIntent(ctx, intent.ID, err)
		return nil, err
	}

	log = log.With(zap.String("providerId", providerID))

	if err := withRetry(ctx, log, "confirm intent", c.MaxAttempts, c.CallTimeout, func(ctx context.Context) error {
		return c.Gateway.Confirm(ctx, providerID)
	}); err != nil {
		// The hold may exist at the provider even though confirmation never
		// succeeded from our side. Release it so no funds stay orphaned.
		c.compensateVoid(providerID, log)
		c.failIntent(ctx, intent.ID, err)
		return nil, err
	}

	if err := c.Repo.MarkAuthorized(ctx, intent.ID, providerID); err != nil {
		c.compensateVoid(providerID, log)
		return nil, err
	}

	intent.Status = models.IntentStatusAuthorized
	intent.ProviderID = providerID
	log.Info("payment authorized", zap.Int64("amount", amount), zap.String("currency", currency))
	return intent, nil
}

func (c *DefaultCoordinator) Capture(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	intent, err := c.getIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	// Retries after a timeout must be safe: a second capture of a captured
	// intent returns the existing result instead of erroring.
	if intent.Status == models.IntentStatusCaptured {
		return intent, nil
	}
	if intent.Status != models.IntentStatusAuthorized {
		return nil, fmt.Errorf("%w: capture requires authorized, intent %s is %s",
			ErrInvalidIntentState, intent.ID, intent.Status)
	}

	log := c.Logger.With(
		zap.String("bookingId", intent.BookingID),
		zap.String("intentId", intent.ID),
		zap.String("providerId", intent.ProviderID))

	if err := withRetry(ctx, log, "capture intent", c.MaxAttempts, c.CallTimeout, func(ctx context.Context) error {
		return c.Gateway.Capture(ctx, intent.ProviderID, "pi-capture-"+intent.ID)
	}); err != nil {
		return nil, err
	}

	if err := c.Repo.MarkCaptured(ctx, intent.ID); err != nil {
		if err == paymentRepo.ErrStatusConflict {
			// A concurrent capture won the mark; the provider call above was
			// idempotent, so just report the persisted state.
			current, rErr := c.getIntent(ctx, intentID)
			if rErr == nil && current.Status == models.IntentStatusCaptured {
				return current, nil
			}
		}
		return nil, err
	}

	intent.Status = models.IntentStatusCaptured
	log.Info("payment captured", zap.Int64("amount", intent.Amount))
	return intent, nil
}

func (c *DefaultCoordinator) Refund(ctx context.Context, intentID string, amount int64) (*models.RefundResult, error) {
	intent, err := c.getIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != models.IntentStatusCaptured {
		return nil, fmt.Errorf("%w: refund requires captured, intent %s is %s",
			ErrInvalidIntentState, intent.ID, intent.Status)
	}

	if amount <= 0 {
		amount = intent.Amount
	}
	if amount > intent.Amount {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidRefundAmount, amount, intent.Amount)
	}

	log := c.Logger.With(
		zap.String("bookingId", intent.BookingID),
		zap.String("intentId", intent.ID),
		zap.String("providerId", intent.ProviderID))

	var refundID string
	if err := withRetry(ctx, log, "refund intent", c.MaxAttempts, c.CallTimeout, func(ctx context.Context) error {
		id, err := c.Gateway.Refund(ctx, intent.ProviderID, amount, "pi-refund-"+intent.ID)
		if err != nil {
			return err
		}
		refundID = id
		return nil
	}); err != nil {
		return nil, err
	}

	if err := c.Repo.MarkRefunded(ctx, intent.ID, amount, refundID); err != nil {
		return nil, err
	}

	log.Info("payment refunded",
		zap.Int64("amount", amount),
		zap.Bool("full", amount == intent.Amount))
	return &models.RefundResult{
		IntentID:         intent.ID,
		BookingID:        intent.BookingID,
		Amount:           amount,
		Currency:         intent.Currency,
		Full:             amount == intent.Amount,
		ProviderRefundID: refundID,
	}, nil
}

func (c *DefaultCoordinator) Void(ctx context.Context, intentID string) error {
	intent, err := c.getIntent(ctx, intentID)
	if err != nil {
		return err
	}

	switch intent.Status {
	case models.IntentStatusVoided:
		return nil
	case models.IntentStatusRequiresAction, models.IntentStatusAuthorized:
	default:
		return fmt.Errorf("%w: void requires an uncaptured intent, %s is %s",
			ErrInvalidIntentState, intent.ID, intent.Status)
	}

	log := c.Logger.With(
		zap.String("bookingId", intent.BookingID),
		zap.String("intentId", intent.ID))

	if intent.ProviderID != "" {
		if err := withRetry(ctx, log, "void intent", c.MaxAttempts, c.CallTimeout, func(ctx context.Context) error {
			return c.Gateway.Void(ctx, intent.ProviderID)
		}); err != nil {
			return err
		}
	}

	if err := c.Repo.MarkVoided(ctx, intent.ID); err != nil {
		return err
	}
	log.Info("payment authorization released")
	return nil
}

func (c *DefaultCoordinator) GetByBookingID(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	intent, err := c.Repo.GetActiveByBookingID(ctx, bookingID)
	if err != nil {
		if err == paymentRepo.ErrNotFound {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return intent, nil
}

func (c *DefaultCoordinator) getIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	intent, err := c.Repo.GetByID(ctx, intentID)
	if err != nil {
		if err == paymentRepo.ErrNotFound {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return intent, nil
}

// failIntent records a terminal authorization failure. Best effort: the
// original provider error is what the caller needs to see.
func (c *DefaultCoordinator) failIntent(ctx context.Context, intentID string, cause error) {
	if err := c.Repo.MarkFailed(ctx, intentID, cause.Error()); err != nil {
		c.Logger.Warn("failed to mark intent failed",
			zap.String("intentId", intentID), zap.Error(err))
	}
}

// compensateVoid releases a possibly-dangling provider hold after a failed
// or interrupted authorization. Runs detached from the caller's context,
// which may already be cancelled.
func (c *DefaultCoordinator) compensateVoid(providerID string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), c.CallTimeout)
	defer cancel()
	if err := c.Gateway.Void(ctx, providerID); err != nil {
		log.Warn("compensating void failed, hold may persist until provider expiry", zap.Error(err))
	}
}
