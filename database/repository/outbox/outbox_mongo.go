package outboxRepo

import (
	"context"
	"fmt"
	"time"

	"coachly/config"
	"coachly/database"
	"coachly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOutboxRepo implements OutboxRepository using MongoDB.
type MongoOutboxRepo struct {
	eventColl *mongo.Collection
}

// NewMongoOutboxRepo constructs a new instance of MongoOutboxRepo.
func NewMongoOutboxRepo() OutboxRepository {
	db := database.MongoClient.Database(config.AppConfig.DatabaseName)
	return &MongoOutboxRepo{
		eventColl: db.Collection("outbox_events"),
	}
}

func (repo *MongoOutboxRepo) Insert(ctx context.Context, event *models.DomainEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := repo.eventColl.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("error inserting outbox event: %w", err)
	}
	return nil
}

// FetchUndispatched returns the oldest events that have not been confirmed
// published yet, in occurrence order.
func (repo *MongoOutboxRepo) FetchUndispatched(ctx context.Context, limit int) ([]models.DomainEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"dispatched_at": bson.M{"$exists": false}}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := repo.eventColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error fetching undispatched events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.DomainEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("error decoding outbox events: %w", err)
	}
	return events, nil
}

func (repo *MongoOutboxRepo) MarkDispatched(ctx context.Context, eventID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"event_id": eventID}
	update := bson.M{"$set": bson.M{"dispatched_at": at}}
	res, err := repo.eventColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("error marking event %s dispatched: %w", eventID, err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
