package availabilityRepo

import (
	"context"
	"time"

	"coachly/models"
)

// AvailabilityRepository reads the bookable windows a coach has declared.
// The booking core consumes it read-only; ownership stays with the coach
// service. Create exists so the coach-facing API can declare windows.
type AvailabilityRepository interface {
	Create(ctx context.Context, slot *models.AvailabilitySlot) error
	ListByCoach(ctx context.Context, coachID string, from, to time.Time) ([]models.AvailabilitySlot, error)
}
