package availabilityRepo

import (
	"context"
	"fmt"
	"time"

	"coachly/config"
	"coachly/database"
	"coachly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoAvailabilityRepo implements AvailabilityRepository using MongoDB.
type MongoAvailabilityRepo struct {
	slotColl *mongo.Collection
}

// NewMongoAvailabilityRepo constructs a new instance of MongoAvailabilityRepo.
func NewMongoAvailabilityRepo() AvailabilityRepository {
	db := database.MongoClient.Database(config.AppConfig.DatabaseName)
	return &MongoAvailabilityRepo{
		slotColl: db.Collection("availability_slots"),
	}
}

func (repo *MongoAvailabilityRepo) Create(ctx context.Context, slot *models.AvailabilitySlot) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := repo.slotColl.InsertOne(ctx, slot); err != nil {
		return fmt.Errorf("error creating availability slot: %w", err)
	}
	return nil
}

// ListByCoach returns the coach's declared windows intersecting [from, to).
func (repo *MongoAvailabilityRepo) ListByCoach(ctx context.Context, coachID string, from, to time.Time) ([]models.AvailabilitySlot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"coach_id": coachID,
		"start_at": bson.M{"$lt": to},
		"end_at":   bson.M{"$gt": from},
	}
	cursor, err := repo.slotColl.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error fetching availability slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []models.AvailabilitySlot
	if err := cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("error decoding availability slots: %w", err)
	}
	return slots, nil
}
