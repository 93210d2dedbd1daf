package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Event struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string        `bson:"title" json:"title"`
	Slug        string        `bson:"slug" json:"slug"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Venue       string        `bson:"venue" json:"venue"`
	StartsAt    time.Time     `bson:"startsAt" json:"startsAt"`
	EndsAt      time.Time     `bson:"endsAt" json:"endsAt"`
	Price       float64       `bson:"price" json:"price"`
	Capacity    int           `bson:"capacity" json:"capacity"`
	SeatsBooked int           `bson:"seatsBooked" json:"seatsBooked"`
	ImageUrl    string        `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	IsPublished bool          `bson:"isPublished" json:"isPublished"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
}

func (e Event) SeatsLeft() int {
	if left := e.Capacity - e.SeatsBooked; left > 0 {
		return left
	}
	return 0
}
