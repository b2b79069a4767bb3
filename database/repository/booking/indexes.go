package bookingRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the overlap query and listings rely on.
func (repo *MongoBookingRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Serves the active-overlap filter.
			Keys: bson.D{
				{Key: "coach_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "start_at", Value: 1},
				{Key: "end_at", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "player_id", Value: 1}, {Key: "start_at", Value: -1}},
		},
	}
	if _, err := repo.bookingColl.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}
