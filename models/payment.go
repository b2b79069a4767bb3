package models

import "time"

// PaymentIntent statuses. Capture is only legal from authorized, refund only
// from captured; the coordinator enforces this ordering.
const (
	IntentStatusRequiresAction = "requires_action"
	IntentStatusAuthorized     = "authorized"
	IntentStatusCaptured       = "captured"
	IntentStatusRefunded       = "refunded"
	IntentStatusVoided         = "voided"
	IntentStatusFailed         = "failed"
)

// PaymentIntent tracks the escrow lifecycle for one booking's payment.
// Amounts are in minor units (cents) to match the provider's wire format.
type PaymentIntent struct {
	ID               string    `bson:"id" json:"id"`
	BookingID        string    `bson:"booking_id" json:"booking_id"`
	Status           string    `bson:"status" json:"status"`
	Amount           int64     `bson:"amount" json:"amount"`
	Currency         string    `bson:"currency" json:"currency"`
	ProviderID       string    `bson:"provider_id,omitempty" json:"provider_id,omitempty"` // Opaque external correlation id
	RefundedAmount   int64     `bson:"refunded_amount,omitempty" json:"refunded_amount,omitempty"`
	ProviderRefundID string    `bson:"provider_refund_id,omitempty" json:"provider_refund_id,omitempty"`
	FailureReason    string    `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updated_at"`
}

// RefundResult reports the outcome of a refund against a captured intent.
type RefundResult struct {
	IntentID         string `json:"intent_id"`
	BookingID        string `json:"booking_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Full             bool   `json:"full"`
	ProviderRefundID string `json:"provider_refund_id,omitempty"`
}
