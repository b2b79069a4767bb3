package models

import "time"

// Domain event types published to downstream consumers (messaging, search
// reindex, notifications). Delivery is at-least-once; consumers dedupe by
// EventID.
const (
	EventBookingCreated       = "BookingCreated"
	EventBookingStatusChanged = "BookingStatusChanged"
	EventBookingCancelled     = "BookingCancelled"
	EventPaymentAuthorized    = "PaymentAuthorized"
	EventPaymentCaptured      = "PaymentCaptured"
	EventPaymentRefunded      = "PaymentRefunded"
)

// DomainEvent is one outbox row. It is written in the same flow as the state
// change it describes and drained to the event sink by the dispatcher.
type DomainEvent struct {
	EventID      string            `bson:"event_id" json:"event_id"`
	Type         string            `bson:"type" json:"type"`
	BookingID    string            `bson:"booking_id" json:"booking_id"`
	ActorID      string            `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	Payload      map[string]string `bson:"payload,omitempty" json:"payload,omitempty"`
	Version      int               `bson:"version" json:"version"` // Booking version at emit time, monotonic per booking
	OccurredAt   time.Time         `bson:"occurred_at" json:"occurred_at"`
	DispatchedAt *time.Time        `bson:"dispatched_at,omitempty" json:"dispatched_at,omitempty"`
}
