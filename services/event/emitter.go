package event

import (
	"context"
	"fmt"
	"time"

	outboxRepo "coachly/database/repository/outbox"
	"coachly/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Emitter records domain events for downstream consumers. Writes go to the
// durable outbox, not straight to the broker, so an event is never lost
// between a committed state change and a flaky sink.
type Emitter interface {
	Emit(ctx context.Context, evtType, bookingID, actorID string, version int, payload map[string]string) error
}

// OutboxEmitter implements Emitter on the outbox repository.
type OutboxEmitter struct {
	Repo   outboxRepo.OutboxRepository
	Logger *zap.Logger
}

func NewOutboxEmitter(repo outboxRepo.OutboxRepository, logger *zap.Logger) *OutboxEmitter {
	return &OutboxEmitter{Repo: repo, Logger: logger}
}

func (e *OutboxEmitter) Emit(ctx context.Context, evtType, bookingID, actorID string, version int, payload map[string]string) error {
	evt := &models.DomainEvent{
		EventID:    uuid.New().String(),
		Type:       evtType,
		BookingID:  bookingID,
		ActorID:    actorID,
		Payload:    payload,
		Version:    version,
		OccurredAt: time.Now().UTC(),
	}
	if err := e.Repo.Insert(ctx, evt); err != nil {
		e.Logger.Error("failed to record domain event",
			zap.String("type", evtType),
			zap.String("bookingId", bookingID),
			zap.Error(err))
		return fmt.Errorf("failed to record %s event: %w", evtType, err)
	}
	return nil
}
