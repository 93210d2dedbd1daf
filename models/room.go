package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type RoomType string

const (
	RoomTypeDorm    RoomType = "dorm"
	RoomTypePrivate RoomType = "private"
	RoomTypeSuite   RoomType = "suite"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeDorm, RoomTypePrivate, RoomTypeSuite:
		return true
	}
	return false
}

type Room struct {
	ID            bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string        `bson:"name" json:"name"`
	Slug          string        `bson:"slug" json:"slug"`
	Description   string        `bson:"description,omitempty" json:"description,omitempty"`
	Type          RoomType      `bson:"type" json:"type"`
	PricePerNight float64       `bson:"pricePerNight" json:"pricePerNight"`
	Capacity      int           `bson:"capacity" json:"capacity"`
	Beds          int           `bson:"beds" json:"beds"`
	Amenities     []string      `bson:"amenities" json:"amenities"`
	ImageUrls     []string      `bson:"imageUrls" json:"imageUrls"`
	IsFeatured    bool          `bson:"isFeatured" json:"isFeatured"`
	IsDisabled    bool          `bson:"isDisabled" json:"isDisabled"`
	CreatedAt     time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt" json:"updatedAt"`
}
