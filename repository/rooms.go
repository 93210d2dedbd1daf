package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type RoomStore interface {
	Create(ctx context.Context, room models.Room) (models.Room, error)
	FindByIDOrSlug(ctx context.Context, key string) (models.Room, error)
	List(ctx context.Context, filter RoomFilter) ([]models.Room, int64, error)
	Replace(ctx context.Context, room models.Room) (models.Room, error)
	Delete(ctx context.Context, id bson.ObjectID) (models.Room, error)
}

type RoomFilter struct {
	Type     models.RoomType
	Featured *bool
	Disabled *bool // nil lists enabled rooms only
	Sort     string
	Skip     int64
	Limit    int64
}

type MongoRoomStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoRoomStore(db *mongo.Database) *MongoRoomStore {
	return &MongoRoomStore{col: db.Collection("rooms"), now: time.Now}
}

func (s *MongoRoomStore) Create(ctx context.Context, room models.Room) (models.Room, error) {
	now := s.now().UTC()
	if room.ID.IsZero() {
		room.ID = bson.NewObjectID()
	}
	room.CreatedAt = now
	room.UpdatedAt = now
	if room.ImageUrls == nil {
		room.ImageUrls = []string{}
	}
	if room.Amenities == nil {
		room.Amenities = []string{}
	}

	if _, err := s.col.InsertOne(ctx, room); err != nil {
		if utils.IsDuplicateKey(err) {
			return models.Room{}, ErrDuplicateSlug
		}
		return models.Room{}, fmt.Errorf("insert room: %w", err)
	}
	return room, nil
}

func (s *MongoRoomStore) FindByIDOrSlug(ctx context.Context, key string) (models.Room, error) {
	var room models.Room
	if err := s.col.FindOne(ctx, idOrSlugFilter(key)).Decode(&room); err != nil {
		return models.Room{}, notFound(err)
	}
	return room, nil
}

func roomSort(sort string) bson.D {
	switch sort {
	case "price_asc":
		return bson.D{{Key: "pricePerNight", Value: 1}}
	case "price_desc":
		return bson.D{{Key: "pricePerNight", Value: -1}}
	case "newest":
		return bson.D{{Key: "createdAt", Value: -1}}
	default:
		return bson.D{{Key: "name", Value: 1}}
	}
}

func (s *MongoRoomStore) List(ctx context.Context, f RoomFilter) ([]models.Room, int64, error) {
	filter := bson.M{"isDisabled": false}
	if f.Disabled != nil {
		filter["isDisabled"] = *f.Disabled
	}
	if f.Featured != nil {
		filter["isFeatured"] = *f.Featured
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}

	findOpts := options.Find().SetSort(roomSort(f.Sort)).SetSkip(f.Skip)
	if f.Limit > 0 {
		findOpts.SetLimit(f.Limit)
	}

	cursor, err := s.col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("find rooms: %w", err)
	}
	rooms := make([]models.Room, 0)
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, 0, fmt.Errorf("decode rooms: %w", err)
	}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}
	return rooms, total, nil
}

func (s *MongoRoomStore) Replace(ctx context.Context, room models.Room) (models.Room, error) {
	room.UpdatedAt = s.now().UTC()
	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": room.ID}, room)
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return models.Room{}, ErrDuplicateSlug
		}
		return models.Room{}, fmt.Errorf("replace room: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.Room{}, ErrNotFound
	}
	return room, nil
}

// Delete removes the room and returns it so callers can clean up its images.
func (s *MongoRoomStore) Delete(ctx context.Context, id bson.ObjectID) (models.Room, error) {
	var room models.Room
	if err := s.col.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&room); err != nil {
		return models.Room{}, notFound(err)
	}
	return room, nil
}
