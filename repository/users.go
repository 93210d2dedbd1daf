package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UserStore is the Credential Store. Emails are normalized before every
// lookup and write. Logically deleted users are invisible to FindByEmail,
// FindByGoogleID and ConsumeSecret but still returned by FindByID.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id bson.ObjectID) (models.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (models.User, error)
	Create(ctx context.Context, user models.User) (models.User, error)
	Update(ctx context.Context, id bson.ObjectID, patch UserPatch) (models.User, error)
	// ConsumeSecret atomically finds the user whose secret matches lookup and
	// is still usable at now, clears that secret and applies patch in the
	// same write. ErrNotFound when nothing matches.
	ConsumeSecret(ctx context.Context, lookup SecretLookup, now time.Time, patch UserPatch) (models.User, error)
	// SwapRefreshToken replaces the stored refresh hash only when it still
	// equals oldHash. ErrNotFound otherwise.
	SwapRefreshToken(ctx context.Context, id bson.ObjectID, oldHash, newHash string) error
	List(ctx context.Context, filter UserFilter) ([]models.User, int64, error)
}

// UserPatch is a partial update. Nil fields are left untouched; the Clear
// flags unset the matching secret.
type UserPatch struct {
	Username          *string
	FullName          *string
	Phone             *string
	Address           *string
	Gender            *models.Gender
	PasswordHash      *string
	Role              *models.Role
	Status            *models.AccountStatus
	GoogleID          *string
	IsBlocked         *bool
	IsEmailVerified   *bool
	RefreshTokenHash  *string
	PasswordReset     *models.SecretToken
	EmailVerification *models.SecretToken
	OTP               *models.SecretToken
	DeletedAt         *time.Time

	ClearRefreshToken      bool
	ClearPasswordReset     bool
	ClearEmailVerification bool
	ClearOTP               bool
}

func (p UserPatch) Apply(u *models.User, now time.Time) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Address != nil {
		u.Address = *p.Address
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.GoogleID != nil {
		u.GoogleID = *p.GoogleID
	}
	if p.IsBlocked != nil {
		u.IsBlocked = *p.IsBlocked
	}
	if p.IsEmailVerified != nil {
		u.IsEmailVerified = *p.IsEmailVerified
	}
	if p.RefreshTokenHash != nil {
		u.RefreshTokenHash = *p.RefreshTokenHash
	}
	if p.PasswordReset != nil {
		t := *p.PasswordReset
		u.PasswordReset = &t
	}
	if p.EmailVerification != nil {
		t := *p.EmailVerification
		u.EmailVerification = &t
	}
	if p.OTP != nil {
		t := *p.OTP
		u.OTP = &t
	}
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		u.DeletedAt = &t
	}
	if p.ClearRefreshToken {
		u.RefreshTokenHash = ""
	}
	if p.ClearPasswordReset {
		u.PasswordReset = nil
	}
	if p.ClearEmailVerification {
		u.EmailVerification = nil
	}
	if p.ClearOTP {
		u.OTP = nil
	}
	u.UpdatedAt = now
}

func (p UserPatch) document(now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	unset := bson.M{}

	setIf := func(key string, v any, ok bool) {
		if ok {
			set[key] = v
		}
	}
	setIf("username", deref(p.Username), p.Username != nil)
	setIf("fullName", deref(p.FullName), p.FullName != nil)
	setIf("phone", deref(p.Phone), p.Phone != nil)
	setIf("address", deref(p.Address), p.Address != nil)
	setIf("gender", deref(p.Gender), p.Gender != nil)
	setIf("passwordHash", deref(p.PasswordHash), p.PasswordHash != nil)
	setIf("role", deref(p.Role), p.Role != nil)
	setIf("status", deref(p.Status), p.Status != nil)
	setIf("googleId", deref(p.GoogleID), p.GoogleID != nil)
	setIf("isBlocked", deref(p.IsBlocked), p.IsBlocked != nil)
	setIf("isEmailVerified", deref(p.IsEmailVerified), p.IsEmailVerified != nil)
	setIf("refreshTokenHash", deref(p.RefreshTokenHash), p.RefreshTokenHash != nil)
	setIf("passwordReset", p.PasswordReset, p.PasswordReset != nil)
	setIf("emailVerification", p.EmailVerification, p.EmailVerification != nil)
	setIf("otp", p.OTP, p.OTP != nil)
	setIf("deletedAt", deref(p.DeletedAt), p.DeletedAt != nil)

	if p.ClearRefreshToken {
		delete(set, "refreshTokenHash")
		unset["refreshTokenHash"] = ""
	}
	if p.ClearPasswordReset {
		delete(set, "passwordReset")
		unset["passwordReset"] = ""
	}
	if p.ClearEmailVerification {
		delete(set, "emailVerification")
		unset["emailVerification"] = ""
	}
	if p.ClearOTP {
		delete(set, "otp")
		unset["otp"] = ""
	}

	doc := bson.M{"$set": set}
	if len(unset) > 0 {
		doc["$unset"] = unset
	}
	return doc
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

type SecretField string

const (
	SecretPasswordReset     SecretField = "passwordReset"
	SecretEmailVerification SecretField = "emailVerification"
	SecretOTP               SecretField = "otp"
)

// SecretLookup selects a user by the hash of one of its single-use secrets.
// Email narrows the match and is required for OTPs, whose codes are short
// enough to collide across users.
type SecretLookup struct {
	Field SecretField
	Hash  string
	Email string
}

// Matches reports whether u holds the secret and it is usable at now.
func (l SecretLookup) Matches(u models.User, now time.Time) bool {
	if u.IsDeleted() || l.Hash == "" {
		return false
	}
	if l.Email != "" && u.Email != utils.NormalizeEmail(l.Email) {
		return false
	}
	var t *models.SecretToken
	switch l.Field {
	case SecretPasswordReset:
		t = u.PasswordReset
	case SecretEmailVerification:
		t = u.EmailVerification
	case SecretOTP:
		t = u.OTP
	}
	return t.Usable(now) && t.Hash == l.Hash
}

func (l SecretLookup) clear(p UserPatch) UserPatch {
	switch l.Field {
	case SecretPasswordReset:
		p.ClearPasswordReset = true
	case SecretEmailVerification:
		p.ClearEmailVerification = true
	case SecretOTP:
		p.ClearOTP = true
	}
	return p
}

type UserFilter struct {
	Search         string // matches email, username or full name
	Role           models.Role
	Blocked        *bool
	IncludeDeleted bool
	Skip           int64
	Limit          int64
}

type MongoUserStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{col: db.Collection("users"), now: time.Now}
}

var notDeleted = bson.M{"$exists": false}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var user models.User
	if err := s.col.FindOne(ctx, filter).Decode(&user); err != nil {
		return models.User{}, notFound(err)
	}
	return user, nil
}

func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findOne(ctx, bson.M{"email": utils.NormalizeEmail(email), "deletedAt": notDeleted})
}

func (s *MongoUserStore) FindByID(ctx context.Context, id bson.ObjectID) (models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoUserStore) FindByGoogleID(ctx context.Context, googleID string) (models.User, error) {
	if googleID == "" {
		return models.User{}, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"googleId": googleID, "deletedAt": notDeleted})
}

func (s *MongoUserStore) Create(ctx context.Context, user models.User) (models.User, error) {
	now := s.now().UTC()
	user.Email = utils.NormalizeEmail(user.Email)
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := s.col.InsertOne(ctx, user); err != nil {
		if utils.IsDuplicateKey(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *MongoUserStore) Update(ctx context.Context, id bson.ObjectID, patch UserPatch) (models.User, error) {
	return s.findOneAndUpdate(ctx, bson.M{"_id": id}, patch)
}

func (s *MongoUserStore) ConsumeSecret(ctx context.Context, lookup SecretLookup, now time.Time, patch UserPatch) (models.User, error) {
	if lookup.Hash == "" {
		return models.User{}, ErrNotFound
	}
	field := string(lookup.Field)
	filter := bson.M{
		field + ".hash":      lookup.Hash,
		field + ".expiresAt": bson.M{"$gt": now},
		"deletedAt":          notDeleted,
	}
	if lookup.Email != "" {
		filter["email"] = utils.NormalizeEmail(lookup.Email)
	}
	return s.findOneAndUpdate(ctx, filter, lookup.clear(patch))
}

func (s *MongoUserStore) SwapRefreshToken(ctx context.Context, id bson.ObjectID, oldHash, newHash string) error {
	if oldHash == "" {
		return ErrNotFound
	}
	patch := UserPatch{RefreshTokenHash: &newHash}
	if newHash == "" {
		patch = UserPatch{ClearRefreshToken: true}
	}
	_, err := s.findOneAndUpdate(ctx, bson.M{"_id": id, "refreshTokenHash": oldHash}, patch)
	return err
}

func (s *MongoUserStore) findOneAndUpdate(ctx context.Context, filter bson.M, patch UserPatch) (models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	err := s.col.FindOneAndUpdate(ctx, filter, patch.document(s.now().UTC()), opts).Decode(&user)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return user, nil
}

func (s *MongoUserStore) List(ctx context.Context, f UserFilter) ([]models.User, int64, error) {
	filter := bson.M{}
	if !f.IncludeDeleted {
		filter["deletedAt"] = notDeleted
	}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.Blocked != nil {
		filter["isBlocked"] = *f.Blocked
	}
	if f.Search != "" {
		rx := bson.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"email": rx},
			bson.M{"username": rx},
			bson.M{"fullName": rx},
		}
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(f.Skip)
	if f.Limit > 0 {
		findOpts.SetLimit(f.Limit)
	}

	cursor, err := s.col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("find users: %w", err)
	}
	users := make([]models.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}
