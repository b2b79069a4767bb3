package cron

import (
	"context"
	"encoding/json"
	"errors"

	"coachly/config"
	"coachly/models"
	"coachly/services/booking"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// InitSessionWorker runs the async worker that fires session-start
// transitions in the background.
func InitSessionWorker(svc booking.BookingService, logger *zap.Logger) *asynq.Server {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisSchedulerDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSessionStart, handleSessionStart(svc, logger))

	go func() {
		logger.Info("session worker starting")
		if err := srv.Run(mux); err != nil {
			logger.Fatal("session worker failed to start", zap.Error(err))
		}
	}()

	return srv
}

// handleSessionStart moves the booking to in_progress, which captures the
// held payment. Idempotent: a retry against an already started booking only
// finishes the capture.
func handleSessionStart(svc booking.BookingService, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p SessionStartPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid session start payload", zap.Error(err))
			return err
		}

		_, err := svc.TransitionStatus(ctx, p.BookingID, models.BookingStatusInProgress, "scheduler", booking.RolePlatform)
		switch {
		case err == nil:
			logger.Info("session started", zap.String("bookingId", p.BookingID))
			return nil
		case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrBookingNotFound):
			// Cancelled or already past in_progress; nothing left to do.
			logger.Info("session start skipped",
				zap.String("bookingId", p.BookingID), zap.Error(err))
			return nil
		case errors.Is(err, booking.ErrStaleState):
			// Lost a race; retry re-reads fresh state.
			return err
		default:
			logger.Error("session start failed, will retry",
				zap.String("bookingId", p.BookingID), zap.Error(err))
			return err
		}
	}
}
