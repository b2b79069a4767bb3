package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	bookingRepo "coachly/database/repository/booking"
	"coachly/models"
	"coachly/services/payment"

	"github.com/google/uuid"
)

// fakeClock is a settable clock for policy and validation tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// memBookingRepo is an in-memory BookingRepository with the same conditional
// write semantics as the Mongo implementation: overlap backstop on insert,
// compare-and-swap on status updates.
type memBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	clock    Clock
}

func (r *memBookingRepo) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now().UTC()
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{bookings: make(map[string]*models.Booking)}
}

func (r *memBookingRepo) CreateIfSlotFree(ctx context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.bookings {
		if existing.CoachID == b.CoachID && existing.IsActive() && existing.Overlaps(b.StartAt, b.EndAt) {
			return bookingRepo.ErrOverlap
		}
	}
	cp := *b
	r.bookings[b.ID] = &cp
	return nil
}

func (r *memBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingRepo.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memBookingRepo) FindOverlapping(ctx context.Context, coachID string, start, end time.Time) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.CoachID == coachID && b.IsActive() && b.Overlaps(start, end) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) UpdateStatusCAS(ctx context.Context, id, fromStatus, toStatus string, expectedVersion int, cancelReason string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingRepo.ErrNotFound
	}
	if b.Status != fromStatus || b.Version != expectedVersion {
		return nil, bookingRepo.ErrVersionMismatch
	}
	b.Status = toStatus
	b.Version++
	if cancelReason != "" {
		b.CancelReason = cancelReason
	}
	b.UpdatedAt = r.now()
	cp := *b
	return &cp, nil
}

func (r *memBookingRepo) List(ctx context.Context, f bookingRepo.ListFilter) ([]models.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []models.Booking
	for _, b := range r.bookings {
		switch f.Role {
		case RolePlayer:
			if b.PlayerID != f.UserID {
				continue
			}
		case RoleCoach:
			if b.CoachID != f.UserID {
				continue
			}
		default:
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		matched = append(matched, *b)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartAt.After(matched[j].StartAt) })

	total := int64(len(matched))
	offset := (f.Page - 1) * f.PageSize
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + f.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *memBookingRepo) FindStalePending(ctx context.Context, olderThan time.Time) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.Status == models.BookingStatusPending && b.CreatedAt.Before(olderThan) {
			out = append(out, *b)
		}
	}
	return out, nil
}

// fakeAvailability approves everything unless explicit windows are set.
type fakeAvailability struct {
	mu      sync.Mutex
	windows []models.AvailabilitySlot
	open    bool
}

func (a *fakeAvailability) WithinDeclared(ctx context.Context, coachID string, start, end time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return nil
	}
	for i := range a.windows {
		if a.windows[i].CoachID == coachID && a.windows[i].Covers(start, end) {
			return nil
		}
	}
	return fmt.Errorf("%w: no window for coach %s", ErrOutsideAvailability, coachID)
}

func (a *fakeAvailability) ListWindows(ctx context.Context, coachID string, from, to time.Time) ([]models.AvailabilitySlot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.windows, nil
}

// fakePayments is an in-memory payment.Coordinator with switchable failure
// modes.
type fakePayments struct {
	mu        sync.Mutex
	intents   map[string]*models.PaymentIntent
	byBooking map[string]string

	declineAuthorize bool
	timeoutAuthorize bool
	timeoutCapture   bool
	timeoutRefund    bool
	timeoutVoid      bool

	authorizeCalls int
	captureCalls   int
	refundCalls    int
	voidCalls      int
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		intents:   make(map[string]*models.PaymentIntent),
		byBooking: make(map[string]string),
	}
}

func (p *fakePayments) Authorize(ctx context.Context, bookingID string, amount int64, currency string) (*models.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authorizeCalls++
	if p.declineAuthorize {
		return nil, fmt.Errorf("%w: card declined", payment.ErrPaymentDeclined)
	}
	if p.timeoutAuthorize {
		return nil, fmt.Errorf("%w: authorize timed out", payment.ErrProviderTimeout)
	}
	intent := &models.PaymentIntent{
		ID:         uuid.New().String(),
		BookingID:  bookingID,
		Status:     models.IntentStatusAuthorized,
		Amount:     amount,
		Currency:   currency,
		ProviderID: "prov-" + bookingID,
	}
	p.intents[intent.ID] = intent
	p.byBooking[bookingID] = intent.ID
	cp := *intent
	return &cp, nil
}

func (p *fakePayments) Capture(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captureCalls++
	if p.timeoutCapture {
		return nil, fmt.Errorf("%w: capture timed out", payment.ErrProviderTimeout)
	}
	intent, ok := p.intents[intentID]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	if intent.Status == models.IntentStatusCaptured {
		cp := *intent
		return &cp, nil
	}
	if intent.Status != models.IntentStatusAuthorized {
		return nil, fmt.Errorf("%w: intent %s is %s", payment.ErrInvalidIntentState, intentID, intent.Status)
	}
	intent.Status = models.IntentStatusCaptured
	cp := *intent
	return &cp, nil
}

func (p *fakePayments) Refund(ctx context.Context, intentID string, amount int64) (*models.RefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refundCalls++
	if p.timeoutRefund {
		return nil, fmt.Errorf("%w: refund timed out", payment.ErrProviderTimeout)
	}
	intent, ok := p.intents[intentID]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	if intent.Status != models.IntentStatusCaptured {
		return nil, fmt.Errorf("%w: intent %s is %s", payment.ErrInvalidIntentState, intentID, intent.Status)
	}
	if amount <= 0 {
		amount = intent.Amount
	}
	intent.Status = models.IntentStatusRefunded
	intent.RefundedAmount = amount
	return &models.RefundResult{
		IntentID:  intent.ID,
		BookingID: intent.BookingID,
		Amount:    amount,
		Currency:  intent.Currency,
		Full:      amount == intent.Amount,
	}, nil
}

func (p *fakePayments) Void(ctx context.Context, intentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voidCalls++
	if p.timeoutVoid {
		return fmt.Errorf("%w: void timed out", payment.ErrProviderTimeout)
	}
	intent, ok := p.intents[intentID]
	if !ok {
		return payment.ErrIntentNotFound
	}
	if intent.Status == models.IntentStatusVoided {
		return nil
	}
	if intent.Status != models.IntentStatusRequiresAction && intent.Status != models.IntentStatusAuthorized {
		return fmt.Errorf("%w: intent %s is %s", payment.ErrInvalidIntentState, intentID, intent.Status)
	}
	intent.Status = models.IntentStatusVoided
	return nil
}

func (p *fakePayments) GetByBookingID(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byBooking[bookingID]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	cp := *p.intents[id]
	return &cp, nil
}

// markCaptured flips an intent to captured directly, simulating a session
// already underway.
func (p *fakePayments) markCaptured(bookingID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.byBooking[bookingID]; ok {
		p.intents[id].Status = models.IntentStatusCaptured
	}
}

func (p *fakePayments) intentStatus(bookingID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byBooking[bookingID]
	if !ok {
		return ""
	}
	return p.intents[id].Status
}

// fakeEmitter records emitted events in order.
type fakeEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Type      string
	BookingID string
	ActorID   string
	Version   int
	Payload   map[string]string
}

func (e *fakeEmitter) Emit(ctx context.Context, evtType, bookingID, actorID string, version int, payload map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{
		Type: evtType, BookingID: bookingID, ActorID: actorID, Version: version, Payload: payload,
	})
	return nil
}

func (e *fakeEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, evt := range e.events {
		out[i] = evt.Type
	}
	return out
}

// fakeScheduler records scheduled session starts.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[string]time.Time)}
}

func (s *fakeScheduler) ScheduleSessionStart(ctx context.Context, bookingID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[bookingID] = at
	return nil
}
