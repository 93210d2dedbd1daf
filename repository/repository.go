// Package repository persists users, rooms, events and bookings in MongoDB.
// Stores return the sentinel errors below and never log.
package repository

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrDuplicateSlug  = errors.New("slug already exists")
	ErrNoSeats        = errors.New("not enough seats left")
	ErrStaleStatus    = errors.New("status changed concurrently")
)

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// idOrSlugFilter matches by _id when key is a valid ObjectID hex, by slug
// otherwise.
func idOrSlugFilter(key string) bson.M {
	if id, err := bson.ObjectIDFromHex(key); err == nil {
		return bson.M{"$or": bson.A{bson.M{"_id": id}, bson.M{"slug": key}}}
	}
	return bson.M{"slug": key}
}
