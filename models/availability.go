package models

import "time"

// AvailabilitySlot is a window during which a coach has declared themselves
// bookable. It is consumed read-only by the booking core: a request outside
// every declared window is a validation failure, distinct from a
// double-booking conflict which is detected against other bookings.
type AvailabilitySlot struct {
	ID      string    `bson:"id" json:"id"`
	CoachID string    `bson:"coach_id" json:"coach_id"`
	StartAt time.Time `bson:"start_at" json:"start_at"`
	EndAt   time.Time `bson:"end_at" json:"end_at"`
}

// Covers reports whether the requested interval falls entirely inside the
// declared window.
func (s *AvailabilitySlot) Covers(start, end time.Time) bool {
	return !start.Before(s.StartAt) && !end.After(s.EndAt)
}
