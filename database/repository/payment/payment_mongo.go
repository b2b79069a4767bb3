package paymentRepo

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

// MongoPaymentRepo implements PaymentRepository using MongoDB.
type MongoPaymentRepo struct {
	intentColl *mongo.Collection
}

// NewMongoPaymentRepo constructs a new instance of MongoPaymentRepo.
func NewMongoPaymentRepo() PaymentRepository {
	db := database.MongoClient.Database(config.AppConfig.DatabaseName)
	return &MongoPaymentRepo{
		intentColl: db.Collection("payment_intents"),
	}
}

func (repo *MongoPaymentRepo) Create(ctx context.Context, intent *models.PaymentIntent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := repo.intentColl.InsertOne(ctx, intent); err != nil {
		return fmt.Errorf("error creating payment intent: %w", err)
	}
	return nil
}

func (repo *MongoPaymentRepo) GetByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var intent models.PaymentIntent
	if err := repo.intentColl.FindOne(ctx, bson.M{"id": id}).Decode(&intent); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching payment intent %s: %w", id, err)
	}
	return &intent, nil
}

// GetActiveByBookingID returns the newest intent for the booking that has not
// been superseded by a failure or void.
func (repo *MongoPaymentRepo) GetActiveByBookingID(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"booking_id": bookingID,
		"status": bson.M{"$nin": bson.A{
			models.IntentStatusFailed,
			models.IntentStatusVoided,
		}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var intent models.PaymentIntent
	if err := repo.intentColl.FindOne(ctx, filter, opts).Decode(&intent); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching payment intent for booking %s: %w", bookingID, err)
	}
	return &intent, nil
}

// markStatus flips the intent status conditionally on the expected current
// statuses. Zero matches means the intent moved or is missing.
func (repo *MongoPaymentRepo) markStatus(ctx context.Context, id string, from []string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set["updated_at"] = time.Now().UTC()
	filter := bson.M{
		"id":     id,
		"status": bson.M{"$in": from},
	}
	res, err := repo.intentColl.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("error updating payment intent %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		count, cErr := repo.intentColl.CountDocuments(ctx, bson.M{"id": id})
		if cErr != nil {
			return fmt.Errorf("error verifying payment intent %s: %w", id, cErr)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

func (repo *MongoPaymentRepo) MarkAuthorized(ctx context.Context, id, providerID string) error {
	return repo.markStatus(ctx, id,
		[]string{models.IntentStatusRequiresAction},
		bson.M{"status": models.IntentStatusAuthorized, "provider_id": providerID})
}

func (repo *MongoPaymentRepo) MarkCaptured(ctx context.Context, id string) error {
	return repo.markStatus(ctx, id,
		[]string{models.IntentStatusAuthorized},
		bson.M{"status": models.IntentStatusCaptured})
}

func (repo *MongoPaymentRepo) MarkRefunded(ctx context.Context, id string, amount int64, providerRefundID string) error {
	return repo.markStatus(ctx, id,
		[]string{models.IntentStatusCaptured},
		bson.M{
			"status":             models.IntentStatusRefunded,
			"refunded_amount":    amount,
			"provider_refund_id": providerRefundID,
		})
}

func (repo *MongoPaymentRepo) MarkVoided(ctx context.Context, id string) error {
	return repo.markStatus(ctx, id,
		[]string{models.IntentStatusRequiresAction, models.IntentStatusAuthorized},
		bson.M{"status": models.IntentStatusVoided})
}

func (repo *MongoPaymentRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return repo.markStatus(ctx, id,
		[]string{models.IntentStatusRequiresAction},
		bson.M{"status": models.IntentStatusFailed, "failure_reason": reason})
}
