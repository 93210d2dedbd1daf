package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type EventStore interface {
	Create(ctx context.Context, event models.Event) (models.Event, error)
	FindByIDOrSlug(ctx context.Context, key string) (models.Event, error)
	FindByID(ctx context.Context, id bson.ObjectID) (models.Event, error)
	List(ctx context.Context, filter EventFilter) ([]models.Event, int64, error)
	Replace(ctx context.Context, event models.Event) (models.Event, error)
	Delete(ctx context.Context, id bson.ObjectID) (models.Event, error)
	// ReserveSeats books seats on a published event that has not started at
	// now, only if capacity allows. ErrNoSeats when it does not, ErrNotFound
	// when the event is missing, unpublished or already started.
	ReserveSeats(ctx context.Context, id bson.ObjectID, seats int, now time.Time) (models.Event, error)
	ReleaseSeats(ctx context.Context, id bson.ObjectID, seats int) error
}

type EventFilter struct {
	PublishedOnly bool
	UpcomingAfter *time.Time
	Skip          int64
	Limit         int64
}

type MongoEventStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoEventStore(db *mongo.Database) *MongoEventStore {
	return &MongoEventStore{col: db.Collection("events"), now: time.Now}
}

func (s *MongoEventStore) Create(ctx context.Context, event models.Event) (models.Event, error) {
	now := s.now().UTC()
	if event.ID.IsZero() {
		event.ID = bson.NewObjectID()
	}
	event.CreatedAt = now
	event.UpdatedAt = now

	if _, err := s.col.InsertOne(ctx, event); err != nil {
		if utils.IsDuplicateKey(err) {
			return models.Event{}, ErrDuplicateSlug
		}
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (s *MongoEventStore) FindByIDOrSlug(ctx context.Context, key string) (models.Event, error) {
	var event models.Event
	if err := s.col.FindOne(ctx, idOrSlugFilter(key)).Decode(&event); err != nil {
		return models.Event{}, notFound(err)
	}
	return event, nil
}

func (s *MongoEventStore) FindByID(ctx context.Context, id bson.ObjectID) (models.Event, error) {
	var event models.Event
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&event); err != nil {
		return models.Event{}, notFound(err)
	}
	return event, nil
}

func (s *MongoEventStore) List(ctx context.Context, f EventFilter) ([]models.Event, int64, error) {
	filter := bson.M{}
	if f.PublishedOnly {
		filter["isPublished"] = true
	}
	if f.UpcomingAfter != nil {
		filter["startsAt"] = bson.M{"$gt": *f.UpcomingAfter}
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "startsAt", Value: 1}}).
		SetSkip(f.Skip)
	if f.Limit > 0 {
		findOpts.SetLimit(f.Limit)
	}

	cursor, err := s.col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("find events: %w", err)
	}
	events := make([]models.Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, 0, fmt.Errorf("decode events: %w", err)
	}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

func (s *MongoEventStore) Replace(ctx context.Context, event models.Event) (models.Event, error) {
	event.UpdatedAt = s.now().UTC()
	// seatsBooked is owned by ReserveSeats/ReleaseSeats.
	update := bson.M{"$set": bson.M{
		"title":       event.Title,
		"slug":        event.Slug,
		"description": event.Description,
		"venue":       event.Venue,
		"startsAt":    event.StartsAt,
		"endsAt":      event.EndsAt,
		"price":       event.Price,
		"capacity":    event.Capacity,
		"imageUrl":    event.ImageUrl,
		"isPublished": event.IsPublished,
		"updatedAt":   event.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Event
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": event.ID}, update, opts).Decode(&updated)
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return models.Event{}, ErrDuplicateSlug
		}
		return models.Event{}, notFound(err)
	}
	return updated, nil
}

func (s *MongoEventStore) Delete(ctx context.Context, id bson.ObjectID) (models.Event, error) {
	var event models.Event
	if err := s.col.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&event); err != nil {
		return models.Event{}, notFound(err)
	}
	return event, nil
}

func (s *MongoEventStore) ReserveSeats(ctx context.Context, id bson.ObjectID, seats int, now time.Time) (models.Event, error) {
	filter := bson.M{
		"_id":         id,
		"isPublished": true,
		"startsAt":    bson.M{"$gt": now},
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$seatsBooked", seats}},
			"$capacity",
		}},
	}
	update := bson.M{
		"$inc": bson.M{"seatsBooked": seats},
		"$set": bson.M{"updatedAt": now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var event models.Event
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&event)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Event{}, fmt.Errorf("reserve seats: %w", err)
	}

	// Tell a full event apart from one that cannot be booked at all.
	current, findErr := s.FindByID(ctx, id)
	if findErr != nil {
		return models.Event{}, findErr
	}
	if !current.IsPublished || !current.StartsAt.After(now) {
		return models.Event{}, ErrNotFound
	}
	return models.Event{}, ErrNoSeats
}

func (s *MongoEventStore) ReleaseSeats(ctx context.Context, id bson.ObjectID, seats int) error {
	filter := bson.M{"_id": id, "seatsBooked": bson.M{"$gte": seats}}
	update := bson.M{
		"$inc": bson.M{"seatsBooked": -seats},
		"$set": bson.M{"updatedAt": s.now().UTC()},
	}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("release seats: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
