package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	availabilityRepo "coachly/database/repository/availability"
	"coachly/models"

	"github.com/go-redis/redis/v8"
)

const availabilityCacheTTL = 10 * time.Minute

// AvailabilityChecker validates a requested interval against the windows the
// coach declared bookable. This is pre-validation, distinct from conflict
// detection: conflicts are found against other bookings, not availability gaps.
type AvailabilityChecker interface {
	WithinDeclared(ctx context.Context, coachID string, start, end time.Time) error
	ListWindows(ctx context.Context, coachID string, from, to time.Time) ([]models.AvailabilitySlot, error)
}

// DefaultAvailabilityChecker reads declared windows through a short-lived
// Redis cache. A nil cache client skips caching entirely.
type DefaultAvailabilityChecker struct {
	Repo  availabilityRepo.AvailabilityRepository
	Cache *redis.Client
}

func NewAvailabilityChecker(repo availabilityRepo.AvailabilityRepository, cache *redis.Client) *DefaultAvailabilityChecker {
	return &DefaultAvailabilityChecker{Repo: repo, Cache: cache}
}

func (a *DefaultAvailabilityChecker) WithinDeclared(ctx context.Context, coachID string, start, end time.Time) error {
	slots, err := a.ListWindows(ctx, coachID, start, end)
	if err != nil {
		return err
	}
	for i := range slots {
		if slots[i].Covers(start, end) {
			return nil
		}
	}
	return fmt.Errorf("%w: coach %s has no declared window covering [%s, %s)",
		ErrOutsideAvailability, coachID, start.Format(time.RFC3339), end.Format(time.RFC3339))
}

func (a *DefaultAvailabilityChecker) ListWindows(ctx context.Context, coachID string, from, to time.Time) ([]models.AvailabilitySlot, error) {
	cacheKey := fmt.Sprintf("availability:%s:%s:%s",
		coachID, from.UTC().Format("2006-01-02T15"), to.UTC().Format("2006-01-02T15"))

	if a.Cache != nil {
		if data, err := a.Cache.Get(ctx, cacheKey).Result(); err == nil {
			var cached []models.AvailabilitySlot
			if err := json.Unmarshal([]byte(data), &cached); err == nil {
				return cached, nil
			}
		}
	}

	slots, err := a.Repo.ListByCoach(ctx, coachID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability for coach %s: %w", coachID, err)
	}

	if a.Cache != nil {
		if data, err := json.Marshal(slots); err == nil {
			// Best effort; a cache miss next time just re-reads Mongo.
			a.Cache.Set(ctx, cacheKey, data, availabilityCacheTTL)
		}
	}
	return slots, nil
}
