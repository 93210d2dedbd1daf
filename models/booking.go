package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

type Booking struct {
	ID bson.ObjectID `bson:"_id,omitempty" json:"id"`

	EventID    bson.ObjectID `bson:"eventId" json:"eventId"`
	EventTitle string        `bson:"eventTitle" json:"eventTitle"`
	UserID     bson.ObjectID `bson:"userId" json:"userId"`

	FullName string `bson:"fullName" json:"fullName"`
	Email    string `bson:"email" json:"email"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`

	Seats      int           `bson:"seats" json:"seats"`
	TotalPrice float64       `bson:"totalPrice" json:"totalPrice"`
	Status     BookingStatus `bson:"status" json:"status"`
	Message    string        `bson:"message,omitempty" json:"message,omitempty"`

	CancelledAt *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
}
