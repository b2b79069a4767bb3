package bookingRepo

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

// MongoBookingRepo implements BookingRepository using MongoDB.
type MongoBookingRepo struct {
	bookingColl *mongo.Collection
}

// NewMongoBookingRepo constructs a new instance of MongoBookingRepo.
func NewMongoBookingRepo() *MongoBookingRepo {
	db := database.MongoClient.Database(config.AppConfig.DatabaseName)
	return &MongoBookingRepo{
		bookingColl: db.Collection("bookings"),
	}
}

func activeOverlapFilter(coachID string, start, end time.Time) bson.M {
	return bson.M{
		"coach_id": coachID,
		"status":   bson.M{"$in": models.ActiveBookingStatuses},
		"start_at": bson.M{"$lt": end},
		"end_at":   bson.M{"$gt": start},
	}
}

// CreateIfSlotFree re-checks the overlap invariant and inserts the booking in
// one transaction. The read inside the transaction makes the check-then-act
// safe: a concurrent create for the same slot either sees this insert or is
// seen by it, never neither.
func (repo *MongoBookingRepo) CreateIfSlotFree(ctx context.Context, booking *models.Booking) error {
	client := repo.bookingColl.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnFn := func(sc mongo.SessionContext) error {
		count, err := repo.bookingColl.CountDocuments(sc,
			activeOverlapFilter(booking.CoachID, booking.StartAt, booking.EndAt))
		if err != nil {
			return fmt.Errorf("overlap re-check failed: %w", err)
		}
		if count > 0 {
			return ErrOverlap
		}
		if _, err := repo.bookingColl.InsertOne(sc, booking); err != nil {
			return fmt.Errorf("insert booking failed: %w", err)
		}
		return nil
	}

	if err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := txnFn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	}); err != nil {
		if err == ErrOverlap {
			return ErrOverlap
		}
		return fmt.Errorf("booking create transaction failed: %w", err)
	}

	return nil
}

// GetByID retrieves a booking document by ID.
func (repo *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking models.Booking
	filter := bson.M{"id": id}
	if err := repo.bookingColl.FindOne(ctx, filter).Decode(&booking); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching booking with id %s: %w", id, err)
	}
	return &booking, nil
}

// FindOverlapping returns the coach's active bookings overlapping [start, end).
func (repo *MongoBookingRepo) FindOverlapping(ctx context.Context, coachID string, start, end time.Time) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := repo.bookingColl.Find(ctx, activeOverlapFilter(coachID, start, end))
	if err != nil {
		return nil, fmt.Errorf("error finding overlapping bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding overlapping bookings: %w", err)
	}
	return bookings, nil
}

// UpdateStatusCAS performs the compare-and-swap transition write. The filter
// pins both the expected status and version; a zero match means the booking
// moved (or vanished) and the caller must re-read.
func (repo *MongoBookingRepo) UpdateStatusCAS(ctx context.Context, id, fromStatus, toStatus string, expectedVersion int, cancelReason string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"id":      id,
		"status":  fromStatus,
		"version": expectedVersion,
	}
	set := bson.M{
		"status":     toStatus,
		"updated_at": time.Now().UTC(),
	}
	if cancelReason != "" {
		set["cancel_reason"] = cancelReason
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Booking
	err := repo.bookingColl.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("error updating booking %s: %w", id, err)
	}

	// Distinguish a missing booking from a stale expectation.
	count, cErr := repo.bookingColl.CountDocuments(ctx, bson.M{"id": id})
	if cErr != nil {
		return nil, fmt.Errorf("error verifying booking %s after failed update: %w", id, cErr)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrVersionMismatch
}

// List returns a page of bookings for the user, newest start time first.
func (repo *MongoBookingRepo) List(ctx context.Context, f ListFilter) ([]models.Booking, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	idField := "player_id"
	if f.Role == "coach" {
		idField = "coach_id"
	}
	filter := bson.M{idField: f.UserID}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	total, err := repo.bookingColl.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting bookings: %w", err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "start_at", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := repo.bookingColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error listing bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, 0, fmt.Errorf("error decoding bookings: %w", err)
	}
	return bookings, total, nil
}

// FindStalePending returns pending bookings older than the cutoff.
func (repo *MongoBookingRepo) FindStalePending(ctx context.Context, olderThan time.Time) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"status":     models.BookingStatusPending,
		"created_at": bson.M{"$lt": olderThan},
	}
	cursor, err := repo.bookingColl.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error finding stale pending bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding stale pending bookings: %w", err)
	}
	return bookings, nil
}
