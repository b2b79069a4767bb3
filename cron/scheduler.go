package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coachly/config"

	"github.com/hibiken/asynq"
)

const TypeSessionStart = "session:start"

// SessionStartPayload is the task body for the deferred
// confirmed -> in_progress transition.
type SessionStartPayload struct {
	BookingID string `json:"booking_id"`
}

// SessionScheduler enqueues a session-start task to fire at the booking's
// start instant. Implements booking.SessionScheduler.
type SessionScheduler struct {
	client *asynq.Client
}

func NewSessionScheduler() *SessionScheduler {
	return &SessionScheduler{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     config.AppConfig.RedisAddr,
			Password: config.AppConfig.RedisPassword,
			DB:       config.AppConfig.RedisSchedulerDB,
		}),
	}
}

func (s *SessionScheduler) ScheduleSessionStart(ctx context.Context, bookingID string, at time.Time) error {
	payload, err := json.Marshal(SessionStartPayload{BookingID: bookingID})
	if err != nil {
		return fmt.Errorf("marshal session start payload: %w", err)
	}
	task := asynq.NewTask(TypeSessionStart, payload)

	// TaskID dedupes re-enqueues for the same booking; retries cover capture
	// timeouts since the transition handler is idempotent.
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID("session-start-"+bookingID),
		asynq.MaxRetry(5),
	)
	if err != nil && err != asynq.ErrTaskIDConflict {
		return fmt.Errorf("enqueue session start for booking %s: %w", bookingID, err)
	}
	return nil
}

func (s *SessionScheduler) Close() error {
	return s.client.Close()
}
