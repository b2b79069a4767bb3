package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	paymentRepo "coachly/database/repository/payment"
	"coachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memPaymentRepo is an in-memory PaymentRepository with the same conditional
// mark semantics as the Mongo implementation.
type memPaymentRepo struct {
	mu      sync.Mutex
	intents map[string]*models.PaymentIntent
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{intents: make(map[string]*models.PaymentIntent)}
}

func (r *memPaymentRepo) Create(ctx context.Context, intent *models.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *intent
	r.intents[intent.ID] = &cp
	return nil
}

func (r *memPaymentRepo) GetByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent, ok := r.intents[id]
	if !ok {
		return nil, paymentRepo.ErrNotFound
	}
	cp := *intent
	return &cp, nil
}

func (r *memPaymentRepo) GetActiveByBookingID(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, intent := range r.intents {
		if intent.BookingID != bookingID {
			continue
		}
		if intent.Status == models.IntentStatusFailed || intent.Status == models.IntentStatusVoided {
			continue
		}
		cp := *intent
		return &cp, nil
	}
	return nil, paymentRepo.ErrNotFound
}

func (r *memPaymentRepo) mark(id string, from []string, apply func(*models.PaymentIntent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent, ok := r.intents[id]
	if !ok {
		return paymentRepo.ErrNotFound
	}
	for _, s := range from {
		if intent.Status == s {
			apply(intent)
			intent.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return paymentRepo.ErrStatusConflict
}

func (r *memPaymentRepo) MarkAuthorized(ctx context.Context, id, providerID string) error {
	return r.mark(id, []string{models.IntentStatusRequiresAction}, func(i *models.PaymentIntent) {
		i.Status = models.IntentStatusAuthorized
		i.ProviderID = providerID
	})
}

func (r *memPaymentRepo) MarkCaptured(ctx context.Context, id string) error {
	return r.mark(id, []string{models.IntentStatusAuthorized}, func(i *models.PaymentIntent) {
		i.Status = models.IntentStatusCaptured
	})
}

func (r *memPaymentRepo) MarkRefunded(ctx context.Context, id string, amount int64, providerRefundID string) error {
	return r.mark(id, []string{models.IntentStatusCaptured}, func(i *models.PaymentIntent) {
		i.Status = models.IntentStatusRefunded
		i.RefundedAmount = amount
		i.ProviderRefundID = providerRefundID
	})
}

func (r *memPaymentRepo) MarkVoided(ctx context.Context, id string) error {
	return r.mark(id, []string{models.IntentStatusRequiresAction, models.IntentStatusAuthorized}, func(i *models.PaymentIntent) {
		i.Status = models.IntentStatusVoided
	})
}

func (r *memPaymentRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return r.mark(id, []string{models.IntentStatusRequiresAction}, func(i *models.PaymentIntent) {
		i.Status = models.IntentStatusFailed
		i.FailureReason = reason
	})
}

// fakeGateway is a scriptable ProviderGateway. failCreate and failConfirm
// count down transient failures before succeeding; -1 fails forever.
type fakeGateway struct {
	mu sync.Mutex

	failCreate    int
	failConfirm   int
	failCapture   int
	declineCreate bool
	declineCap    bool

	createCalls  int
	confirmCalls int
	captureCalls int
	refundCalls  int
	voidCalls    int
}

func (g *fakeGateway) countdown(n *int) error {
	if *n == -1 {
		return errors.New("provider unreachable")
	}
	if *n > 0 {
		*n--
		return errors.New("provider unreachable")
	}
	return nil
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount int64, currency, idempotencyKey string, metadata map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.declineCreate {
		return "", Permanent(fmt.Errorf("%w: card declined", ErrPaymentDeclined))
	}
	if err := g.countdown(&g.failCreate); err != nil {
		return "", err
	}
	return "prov-" + idempotencyKey, nil
}

func (g *fakeGateway) Confirm(ctx context.Context, providerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmCalls++
	return g.countdown(&g.failConfirm)
}

func (g *fakeGateway) Capture(ctx context.Context, providerID, idempotencyKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	if g.declineCap {
		return Permanent(fmt.Errorf("%w: capture rejected", ErrPaymentDeclined))
	}
	return g.countdown(&g.failCapture)
}

func (g *fakeGateway) Refund(ctx context.Context, providerID string, amount int64, idempotencyKey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	return "re-" + idempotencyKey, nil
}

func (g *fakeGateway) Void(ctx context.Context, providerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voidCalls++
	return nil
}

func newTestCoordinator(gw *fakeGateway) (*DefaultCoordinator, *memPaymentRepo) {
	repo := newMemPaymentRepo()
	// The fake gateway never blocks, so a short per-attempt timeout is plenty.
	c := NewCoordinator(repo, gw, zap.NewNop(), 3, 50*time.Millisecond)
	return c, repo
}

func TestAuthorizeSuccess(t *testing.T) {
	gw := &fakeGateway{}
	c, repo := newTestCoordinator(gw)

	intent, err := c.Authorize(context.Background(), "bk-1", 5000, "eur")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusAuthorized, intent.Status)
	assert.NotEmpty(t, intent.ProviderID)
	assert.Equal(t, 1, gw.createCalls)
	assert.Equal(t, 1, gw.confirmCalls)

	stored, err := repo.GetByID(context.Background(), intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusAuthorized, stored.Status)
}

func TestAuthorizeDeclineNoRetry(t *testing.T) {
	gw := &fakeGateway{declineCreate: true}
	c, repo := newTestCoordinator(gw)

	intent, err := c.Authorize(context.Background(), "bk-1", 5000, "eur")
	assert.Nil(t, intent)
	assert.ErrorIs(t, err, ErrPaymentDeclined)
	assert.Equal(t, 1, gw.createCalls, "a decline is permanent, never retried")

	// The local intent is marked failed with the decline reason.
	stored, err := repo.GetActiveByBookingID(context.Background(), "bk-1")
	assert.ErrorIs(t, err, paymentRepo.ErrNotFound, "failed intents are not active")
	assert.Nil(t, stored)
}

func TestAuthorizeRetriesTransientFaults(t *testing.T) {
	gw := &fakeGateway{failCreate: 2}
	c, _ := newTestCoordinator(gw)

	intent, err := c.Authorize(context.Background(), "bk-1", 5000, "eur")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusAuthorized, intent.Status)
	assert.Equal(t, 3, gw.createCalls, "two transient faults then success")
}

func TestAuthorizeExhaustionIsTimeout(t *testing.T) {
	gw := &fakeGateway{failCreate: -1}
	c, _ := newTestCoordinator(gw)

	_, err := c.Authorize(context.Background(), "bk-1", 5000, "eur")
	assert.ErrorIs(t, err, ErrProviderTimeout)
	assert.NotErrorIs(t, err, ErrPaymentDeclined)
	assert.Equal(t, 3, gw.createCalls, "bounded retry, then give up")
}

func TestAuthorizeConfirmFailureCompensates(t *testing.T) {
	gw := &fakeGateway{failConfirm: -1}
	c, _ := newTestCoordinator(gw)

	_, err := c.Authorize(context.Background(), "bk-1", 5000, "eur")
	assert.ErrorIs(t, err, ErrProviderTimeout)
	// The hold may exist provider-side even though confirm never returned;
	// the coordinator voids it defensively.
	assert.Equal(t, 1, gw.voidCalls)
}

func TestCaptureIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestCoordinator(gw)
	ctx := context.Background()

	intent, err := c.Authorize(ctx, "bk-1", 5000, "eur")
	require.NoError(t, err)

	first, err := c.Capture(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCaptured, first.Status)
	assert.Equal(t, 1, gw.captureCalls)

	// A retry after a lost response returns the existing result without a
	// second provider call.
	second, err := c.Capture(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCaptured, second.Status)
	assert.Equal(t, 1, gw.captureCalls)
}

func TestCaptureRequiresAuthorized(t *testing.T) {
	gw := &fakeGateway{}
	c, repo := newTestCoordinator(gw)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.PaymentIntent{
		ID: "pi-raw", BookingID: "bk-1", Status: models.IntentStatusRequiresAction, Amount: 5000,
	}))

	_, err := c.Capture(ctx, "pi-raw")
	assert.ErrorIs(t, err, ErrInvalidIntentState)
	assert.Zero(t, gw.captureCalls)

	_, err = c.Capture(ctx, "no-such-intent")
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestRefundFullByDefault(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestCoordinator(gw)
	ctx := context.Background()

	intent, err := c.Authorize(ctx, "bk-1", 5000, "eur")
	require.NoError(t, err)
	_, err = c.Capture(ctx, intent.ID)
	require.NoError(t, err)

	res, err := c.Refund(ctx, intent.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), res.Amount)
	assert.True(t, res.Full)
	assert.NotEmpty(t, res.ProviderRefundID)
}

func TestRefundPartialAndBounds(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestCoordinator(gw)
	ctx := context.Background()

	intent, err := c.Authorize(ctx, "bk-1", 5000, "eur")
	require.NoError(t, err)
	_, err = c.Capture(ctx, intent.ID)
	require.NoError(t, err)

	_, err = c.Refund(ctx, intent.ID, 6000)
	assert.ErrorIs(t, err, ErrInvalidRefundAmount)

	res, err := c.Refund(ctx, intent.ID, 2500)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), res.Amount)
	assert.False(t, res.Full)

	// Refund is terminal: the intent left captured, no second refund.
	_, err = c.Refund(ctx, intent.ID, 2500)
	assert.ErrorIs(t, err, ErrInvalidIntentState)
}

func TestRefundRequiresCaptured(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestCoordinator(gw)
	ctx := context.Background()

	intent, err := c.Authorize(ctx, "bk-1", 5000, "eur")
	require.NoError(t, err)

	_, err = c.Refund(ctx, intent.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidIntentState)
	assert.Zero(t, gw.refundCalls)
}

func TestVoidReleasesHold(t *testing.T) {
	gw := &fakeGateway{}
	c, repo := newTestCoordinator(gw)
	ctx := context.Background()

	intent, err := c.Authorize(ctx, "bk-1", 5000, "eur")
	require.NoError(t, err)

	require.NoError(t, c.Void(ctx, intent.ID))
	stored, err := repo.GetByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusVoided, stored.Status)

	// Voiding twice is a no-op.
	require.NoError(t, c.Void(ctx, intent.ID))
	assert.Equal(t, 1, gw.voidCalls)
}

func TestVoidRejectsCaptured(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestCoordinator(gw)
	ctx := context.Background()

	intent, err := c.Authorize(ctx, "bk-1", 5000, "eur")
	require.NoError(t, err)
	_, err = c.Capture(ctx, intent.ID)
	require.NoError(t, err)

	err = c.Void(ctx, intent.ID)
	assert.ErrorIs(t, err, ErrInvalidIntentState)
}

func TestGetByBookingIDSkipsSuperseded(t *testing.T) {
	gw := &fakeGateway{declineCreate: true}
	c, _ := newTestCoordinator(gw)
	ctx := context.Background()

	// First attempt declines and leaves a failed intent behind.
	_, err := c.Authorize(ctx, "bk-1", 5000, "eur")
	require.ErrorIs(t, err, ErrPaymentDeclined)

	_, err = c.GetByBookingID(ctx, "bk-1")
	assert.ErrorIs(t, err, ErrIntentNotFound)

	// A retry with a working card becomes the active intent.
	gw.declineCreate = false
	fresh, err := c.Authorize(ctx, "bk-1", 5000, "eur")
	require.NoError(t, err)

	active, err := c.GetByBookingID(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, active.ID)
}
