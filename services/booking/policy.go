package booking

import (
	"fmt"
	"time"

	"coachly/models"
)

// RefundEligibility is the policy outcome handed back to the caller. The
// actual refund amount computation stays a payment coordinator concern,
// driven by this flag; policy never moves money itself.
type RefundEligibility struct {
	FullRefund    bool `json:"full_refund"`
	RefundPercent int  `json:"refund_percent"`
}

// CancellationPolicy evaluates whether a booking may be cancelled now and
// what refund the player is entitled to. Thresholds are platform-wide
// configuration.
type CancellationPolicy struct {
	Clock Clock
	// CutoffHours protects the coach: a confirmed booking cannot be
	// cancelled within this many hours of its start.
	CutoffHours int
	// FullRefundHours is the threshold for a full refund.
	FullRefundHours int
	// PartialRefundPercent applies between the cutoff and the full-refund
	// threshold. Zero means no refund in that window.
	PartialRefundPercent int
}

func NewCancellationPolicy(clock Clock, cutoffHours, fullRefundHours, partialPercent int) *CancellationPolicy {
	return &CancellationPolicy{
		Clock:                clock,
		CutoffHours:          cutoffHours,
		FullRefundHours:      fullRefundHours,
		PartialRefundPercent: partialPercent,
	}
}

// Evaluate returns the refund eligibility, or ErrCancellationWindowClosed
// when a confirmed booking is too close to its start to cancel at all.
func (p *CancellationPolicy) Evaluate(b *models.Booking) (RefundEligibility, error) {
	return p.EvaluateFrom(b, p.Clock.Now())
}

// EvaluateFrom evaluates the policy as of an explicit instant. Settlement
// recovery uses the recorded cancellation time so a retried cancel yields the
// same eligibility the original one did.
func (p *CancellationPolicy) EvaluateFrom(b *models.Booking, at time.Time) (RefundEligibility, error) {
	hoursUntilStart := b.StartAt.Sub(at).Hours()

	if b.Status == models.BookingStatusConfirmed && hoursUntilStart < float64(p.CutoffHours) {
		return RefundEligibility{}, fmt.Errorf("%w: booking starts in %.1f hours, cutoff is %d hours",
			ErrCancellationWindowClosed, hoursUntilStart, p.CutoffHours)
	}

	if hoursUntilStart >= float64(p.FullRefundHours) {
		return RefundEligibility{FullRefund: true, RefundPercent: 100}, nil
	}
	return RefundEligibility{FullRefund: false, RefundPercent: p.PartialRefundPercent}, nil
}
