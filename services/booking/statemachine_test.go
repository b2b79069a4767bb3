package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"coachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{models.BookingStatusPending, models.BookingStatusConfirmed},
		{models.BookingStatusPending, models.BookingStatusCancelled},
		{models.BookingStatusConfirmed, models.BookingStatusInProgress},
		{models.BookingStatusConfirmed, models.BookingStatusCancelled},
		{models.BookingStatusInProgress, models.BookingStatusCompleted},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s should be legal", tr[0], tr[1])
	}

	denied := [][2]string{
		{models.BookingStatusPending, models.BookingStatusInProgress},
		{models.BookingStatusPending, models.BookingStatusCompleted},
		{models.BookingStatusConfirmed, models.BookingStatusCompleted},
		{models.BookingStatusConfirmed, models.BookingStatusPending},
		{models.BookingStatusInProgress, models.BookingStatusCancelled},
		{models.BookingStatusInProgress, models.BookingStatusConfirmed},
		{models.BookingStatusCompleted, models.BookingStatusCancelled},
		{models.BookingStatusCompleted, models.BookingStatusInProgress},
		{models.BookingStatusCancelled, models.BookingStatusConfirmed},
		{models.BookingStatusCancelled, models.BookingStatusPending},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s should be illegal", tr[0], tr[1])
	}
}

func seedBooking(t *testing.T, repo *memBookingRepo, status string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ID:              "bk-1",
		PlayerID:        "player-1",
		CoachID:         "coach-1",
		StartAt:         testBase.Add(24 * time.Hour),
		EndAt:           testBase.Add(25 * time.Hour),
		DurationMinutes: 60,
		Status:          models.BookingStatusPending,
		Version:         1,
		CreatedAt:       testBase,
		UpdatedAt:       testBase,
	}
	require.NoError(t, repo.CreateIfSlotFree(context.Background(), b))
	if status != models.BookingStatusPending {
		updated, err := repo.UpdateStatusCAS(context.Background(), b.ID, b.Status, status, b.Version, "")
		require.NoError(t, err)
		return updated
	}
	return b
}

func TestTransitionBumpsVersion(t *testing.T) {
	repo := newMemBookingRepo()
	m := NewStateMachine(repo)
	b := seedBooking(t, repo, models.BookingStatusPending)

	updated, err := m.Transition(context.Background(), b, models.BookingStatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, updated.Status)
	assert.Equal(t, b.Version+1, updated.Version)
}

func TestTransitionIllegalStep(t *testing.T) {
	repo := newMemBookingRepo()
	m := NewStateMachine(repo)
	b := seedBooking(t, repo, models.BookingStatusInProgress)

	_, err := m.Transition(context.Background(), b, models.BookingStatusCancelled, "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The illegal attempt never touched the store.
	stored, err := repo.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusInProgress, stored.Status)
	assert.Equal(t, b.Version, stored.Version)
}

func TestTransitionStaleVersion(t *testing.T) {
	repo := newMemBookingRepo()
	m := NewStateMachine(repo)
	b := seedBooking(t, repo, models.BookingStatusConfirmed)

	// Another writer advances the booking behind the caller's back.
	_, err := repo.UpdateStatusCAS(context.Background(), b.ID, b.Status, models.BookingStatusInProgress, b.Version, "")
	require.NoError(t, err)

	// The caller still holds the confirmed@v2 snapshot.
	_, err = m.Transition(context.Background(), b, models.BookingStatusCancelled, "")
	assert.ErrorIs(t, err, ErrStaleState)
}

func TestTransitionMissingBooking(t *testing.T) {
	repo := newMemBookingRepo()
	m := NewStateMachine(repo)

	ghost := &models.Booking{ID: "nope", Status: models.BookingStatusPending, Version: 1}
	_, err := m.Transition(context.Background(), ghost, models.BookingStatusConfirmed, "")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	repo := newMemBookingRepo()
	m := NewStateMachine(repo)
	b := seedBooking(t, repo, models.BookingStatusConfirmed)

	// Both racers hold the same snapshot and request competing legal targets.
	targets := []string{models.BookingStatusInProgress, models.BookingStatusCancelled}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			snapshot := *b
			_, errs[i] = m.Transition(context.Background(), &snapshot, target, "")
		}(i, target)
	}
	wg.Wait()

	var won, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		default:
			assert.ErrorIs(t, err, ErrStaleState)
			stale++
		}
	}
	assert.Equal(t, 1, won, "exactly one racer commits")
	assert.Equal(t, 1, stale)
}
