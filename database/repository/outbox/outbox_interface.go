package outboxRepo

import (
	"context"
	"time"

	"coachly/models"
)

// OutboxRepository stores domain events durably alongside the state changes
// that produced them. Rows stay until the dispatcher confirms publication,
// which gives downstream consumers at-least-once delivery.
type OutboxRepository interface {
	Insert(ctx context.Context, event *models.DomainEvent) error
	FetchUndispatched(ctx context.Context, limit int) ([]models.DomainEvent, error)
	MarkDispatched(ctx context.Context, eventID string, at time.Time) error
}
