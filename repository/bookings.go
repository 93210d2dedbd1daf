package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/princinho/hostelbackend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type BookingStore interface {
	Create(ctx context.Context, booking models.Booking) (models.Booking, error)
	FindByID(ctx context.Context, id bson.ObjectID) (models.Booking, error)
	List(ctx context.Context, filter BookingFilter) ([]models.Booking, int64, error)
	// SetStatus moves the booking to status only when its current status is
	// one of from. ErrStaleStatus when it is not, ErrNotFound when missing.
	SetStatus(ctx context.Context, id bson.ObjectID, from []models.BookingStatus, to models.BookingStatus, now time.Time) (models.Booking, error)
}

type BookingFilter struct {
	UserID  *bson.ObjectID
	EventID *bson.ObjectID
	Status  models.BookingStatus
	Skip    int64
	Limit   int64
}

type MongoBookingStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoBookingStore(db *mongo.Database) *MongoBookingStore {
	return &MongoBookingStore{col: db.Collection("bookings"), now: time.Now}
}

func (s *MongoBookingStore) Create(ctx context.Context, booking models.Booking) (models.Booking, error) {
	now := s.now().UTC()
	if booking.ID.IsZero() {
		booking.ID = bson.NewObjectID()
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if _, err := s.col.InsertOne(ctx, booking); err != nil {
		return models.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	return booking, nil
}

func (s *MongoBookingStore) FindByID(ctx context.Context, id bson.ObjectID) (models.Booking, error) {
	var booking models.Booking
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&booking); err != nil {
		return models.Booking{}, notFound(err)
	}
	return booking, nil
}

func (s *MongoBookingStore) List(ctx context.Context, f BookingFilter) ([]models.Booking, int64, error) {
	filter := bson.M{}
	if f.UserID != nil {
		filter["userId"] = *f.UserID
	}
	if f.EventID != nil {
		filter["eventId"] = *f.EventID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(f.Skip)
	if f.Limit > 0 {
		findOpts.SetLimit(f.Limit)
	}

	cursor, err := s.col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("find bookings: %w", err)
	}
	bookings := make([]models.Booking, 0)
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, 0, fmt.Errorf("decode bookings: %w", err)
	}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	return bookings, total, nil
}

func (s *MongoBookingStore) SetStatus(ctx context.Context, id bson.ObjectID, from []models.BookingStatus, to models.BookingStatus, now time.Time) (models.Booking, error) {
	set := bson.M{"status": to, "updatedAt": now}
	if to == models.BookingStatusCancelled {
		set["cancelledAt"] = now
	}
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var booking models.Booking
	err := s.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&booking)
	if err == nil {
		return booking, nil
	}
	if err = notFound(err); err != ErrNotFound {
		return models.Booking{}, fmt.Errorf("set booking status: %w", err)
	}
	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return models.Booking{}, findErr
	}
	return models.Booking{}, ErrStaleStatus
}
