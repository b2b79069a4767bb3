package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
)

// ProviderGateway is the boundary to the external payment provider. All
// calls are idempotent under the supplied key where the provider supports
// idempotency keys. Implementations must wrap non-retryable failures with
// Permanent so the retry layer stops immediately.
type ProviderGateway interface {
	// CreateIntent opens a manual-capture intent (funds held, not moved)
	// and returns the provider's correlation id.
	CreateIntent(ctx context.Context, amount int64, currency, idempotencyKey string, metadata map[string]string) (string, error)
	Confirm(ctx context.Context, providerID string) error
	Capture(ctx context.Context, providerID, idempotencyKey string) error
	// Refund returns the provider's refund correlation id.
	Refund(ctx context.Context, providerID string, amount int64, idempotencyKey string) (string, error)
	// Void cancels an uncaptured intent, releasing the hold.
	Void(ctx context.Context, providerID string) error
}

// StripeGateway implements ProviderGateway against Stripe manual-capture
// PaymentIntents. The API key is set globally in main (stripe.Key).
type StripeGateway struct{}

func NewStripeGateway() *StripeGateway {
	return &StripeGateway{}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency, idempotencyKey string, metadata map[string]string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", classify("create intent", err)
	}
	return pi.ID, nil
}

func (g *StripeGateway) Confirm(ctx context.Context, providerID string) error {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if _, err := paymentintent.Confirm(providerID, params); err != nil {
		return classify("confirm intent", err)
	}
	return nil
}

func (g *StripeGateway) Capture(ctx context.Context, providerID, idempotencyKey string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	if _, err := paymentintent.Capture(providerID, params); err != nil {
		return classify("capture intent", err)
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, providerID string, amount int64, idempotencyKey string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	r, err := refund.New(params)
	if err != nil {
		return "", classify("refund intent", err)
	}
	return r.ID, nil
}

func (g *StripeGateway) Void(ctx context.Context, providerID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := paymentintent.Cancel(providerID, params); err != nil {
		return classify("cancel intent", err)
	}
	return nil
}

// classify splits provider failures into permanent declines and transient
// faults. Card errors and invalid requests will never succeed on retry;
// everything else (network, 5xx, rate limits) is left retryable.
func classify(op string, err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		switch sErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return Permanent(fmt.Errorf("%w: %s: %s", ErrPaymentDeclined, op, sErr.Msg))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
