package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

type AccountStatus string

const (
	StatusPendingVerification AccountStatus = "pending_verification"
	StatusActive              AccountStatus = "active"
)

// SecretToken is a single-use secret kept only as a SHA-256 hash.
type SecretToken struct {
	Hash      string    `bson:"hash"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

// Usable reports whether the token has not yet expired at now. A token is
// rejected at its expiry instant.
func (t *SecretToken) Usable(now time.Time) bool {
	return t != nil && t.Hash != "" && now.Before(t.ExpiresAt)
}

type User struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string        `bson:"username" json:"username"`
	FullName     string        `bson:"fullName" json:"fullName"`
	Email        string        `bson:"email" json:"email"`
	Phone        string        `bson:"phone,omitempty" json:"phone,omitempty"`
	PasswordHash string        `bson:"passwordHash" json:"-"` // never expose
	DateOfBirth  *time.Time    `bson:"dateOfBirth,omitempty" json:"dateOfBirth,omitempty"`
	Address      string        `bson:"address,omitempty" json:"address,omitempty"`
	Gender       Gender        `bson:"gender,omitempty" json:"gender,omitempty"`
	Role         Role          `bson:"role" json:"role"`
	Status       AccountStatus `bson:"status" json:"status"`
	GoogleID     string        `bson:"googleId,omitempty" json:"-"`

	IsBlocked       bool `bson:"isBlocked" json:"isBlocked"`
	IsEmailVerified bool `bson:"isEmailVerified" json:"isEmailVerified"`

	RefreshTokenHash  string       `bson:"refreshTokenHash,omitempty" json:"-"`
	PasswordReset     *SecretToken `bson:"passwordReset,omitempty" json:"-"`
	EmailVerification *SecretToken `bson:"emailVerification,omitempty" json:"-"`
	OTP               *SecretToken `bson:"otp,omitempty" json:"-"`

	DeletedAt *time.Time `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updatedAt"`
}

func (u User) IsDeleted() bool {
	return u.DeletedAt != nil
}

func (u User) LoggedIn() bool {
	return u.RefreshTokenHash != ""
}
