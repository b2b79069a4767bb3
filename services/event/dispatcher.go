package event

import (
	"context"
	"strings"
	"time"

	outboxRepo "coachly/database/repository/outbox"

	"go.uber.org/zap"
)

// Dispatcher drains the outbox to the event sink. A row is only marked
// dispatched after a successful publish, so a crash or broker failure
// replays it on the next pass: at-least-once, consumers dedupe by event id.
type Dispatcher struct {
	Repo      outboxRepo.OutboxRepository
	Publisher Publisher
	Logger    *zap.Logger
	Interval  time.Duration
	BatchSize int
}

func NewDispatcher(repo outboxRepo.OutboxRepository, pub Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Repo:      repo,
		Publisher: pub,
		Logger:    logger,
		Interval:  2 * time.Second,
		BatchSize: 100,
	}
}

// Run drains the outbox until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	d.Logger.Info("outbox dispatcher started", zap.Duration("interval", d.Interval))
	for {
		select {
		case <-ctx.Done():
			d.Logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.DrainOnce(ctx)
		}
	}
}

// DrainOnce publishes one batch of undispatched events.
func (d *Dispatcher) DrainOnce(ctx context.Context) {
	events, err := d.Repo.FetchUndispatched(ctx, d.BatchSize)
	if err != nil {
		d.Logger.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for i := range events {
		evt := &events[i]
		key := routingKey(evt.Type)
		if err := d.Publisher.PublishJSON(ctx, key, evt); err != nil {
			// Leave the row; the next pass redelivers it.
			d.Logger.Error("failed to publish event, will retry",
				zap.String("eventId", evt.EventID),
				zap.String("type", evt.Type),
				zap.Error(err))
			return
		}
		if err := d.Repo.MarkDispatched(ctx, evt.EventID, time.Now().UTC()); err != nil {
			// Published but not marked: the event will be republished.
			// Consumers dedupe by event id, so this is safe.
			d.Logger.Warn("failed to mark event dispatched",
				zap.String("eventId", evt.EventID),
				zap.Error(err))
			return
		}
	}
}

// routingKey maps an event type like "BookingStatusChanged" to
// "booking.status_changed" style topic keys.
func routingKey(evtType string) string {
	var b strings.Builder
	for i, r := range evtType {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	// Collapse the camel-case split into domain.subject form: the first
	// segment is the aggregate, the rest the action.
	parts := strings.SplitN(b.String(), ".", 2)
	if len(parts) == 2 {
		return parts[0] + "." + strings.ReplaceAll(parts[1], ".", "_")
	}
	return parts[0]
}
