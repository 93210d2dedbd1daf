package controllers

import (
	"context"
	"sync"
	"time"

	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type memUsers struct {
	mu    sync.Mutex
	users map[bson.ObjectID]models.User
}

func (m *memUsers) find(match func(models.User) bool) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	email = utils.NormalizeEmail(email)
	return m.find(func(u models.User) bool { return u.Email == email && !u.IsDeleted() })
}

func (m *memUsers) FindByID(_ context.Context, id bson.ObjectID) (models.User, error) {
	return m.find(func(u models.User) bool { return u.ID == id })
}

func (m *memUsers) FindByGoogleID(_ context.Context, googleID string) (models.User, error) {
	return m.find(func(u models.User) bool { return googleID != "" && u.GoogleID == googleID && !u.IsDeleted() })
}

func (m *memUsers) Create(_ context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Email = utils.NormalizeEmail(user.Email)
	for _, u := range m.users {
		if u.Email == user.Email {
			return models.User{}, repository.ErrDuplicateEmail
		}
	}
	user.ID = bson.NewObjectID()
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(_ context.Context, id bson.ObjectID, patch repository.UserPatch) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	patch.Apply(&u, time.Now())
	m.users[id] = u
	return u, nil
}

func (m *memUsers) ConsumeSecret(_ context.Context, lookup repository.SecretLookup, now time.Time, patch repository.UserPatch) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if !lookup.Matches(u, now) {
			continue
		}
		switch lookup.Field {
		case repository.SecretPasswordReset:
			patch.ClearPasswordReset = true
		case repository.SecretEmailVerification:
			patch.ClearEmailVerification = true
		case repository.SecretOTP:
			patch.ClearOTP = true
		}
		patch.Apply(&u, now)
		m.users[id] = u
		return u, nil
	}
	return models.User{}, repository.ErrNotFound
}

func (m *memUsers) SwapRefreshToken(_ context.Context, id bson.ObjectID, oldHash, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || oldHash == "" || u.RefreshTokenHash != oldHash {
		return repository.ErrNotFound
	}
	u.RefreshTokenHash = newHash
	m.users[id] = u
	return nil
}

func (m *memUsers) List(context.Context, repository.UserFilter) ([]models.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		if !u.IsDeleted() {
			out = append(out, u)
		}
	}
	return out, int64(len(out)), nil
}

type memEvents struct {
	mu     sync.Mutex
	events map[bson.ObjectID]models.Event
}

func (m *memEvents) Create(_ context.Context, e models.Event) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.events {
		if other.Slug == e.Slug {
			return models.Event{}, repository.ErrDuplicateSlug
		}
	}
	e.ID = bson.NewObjectID()
	m.events[e.ID] = e
	return e, nil
}

func (m *memEvents) FindByIDOrSlug(_ context.Context, key string) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID.Hex() == key || e.Slug == key {
			return e, nil
		}
	}
	return models.Event{}, repository.ErrNotFound
}

func (m *memEvents) FindByID(ctx context.Context, id bson.ObjectID) (models.Event, error) {
	return m.FindByIDOrSlug(ctx, id.Hex())
}

func (m *memEvents) List(_ context.Context, f repository.EventFilter) ([]models.Event, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Event, 0)
	for _, e := range m.events {
		if f.PublishedOnly && !e.IsPublished {
			continue
		}
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (m *memEvents) Replace(_ context.Context, e models.Event) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[e.ID]
	if !ok {
		return models.Event{}, repository.ErrNotFound
	}
	e.SeatsBooked = cur.SeatsBooked
	m.events[e.ID] = e
	return e, nil
}

func (m *memEvents) Delete(_ context.Context, id bson.ObjectID) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return models.Event{}, repository.ErrNotFound
	}
	delete(m.events, id)
	return e, nil
}

func (m *memEvents) ReserveSeats(_ context.Context, id bson.ObjectID, seats int, now time.Time) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || !e.IsPublished || !e.StartsAt.After(now) {
		return models.Event{}, repository.ErrNotFound
	}
	if e.SeatsBooked+seats > e.Capacity {
		return models.Event{}, repository.ErrNoSeats
	}
	e.SeatsBooked += seats
	m.events[id] = e
	return e, nil
}

func (m *memEvents) ReleaseSeats(_ context.Context, id bson.ObjectID, seats int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.SeatsBooked -= seats
	m.events[id] = e
	return nil
}

type memBookings struct {
	mu       sync.Mutex
	bookings map[bson.ObjectID]models.Booking
}

func (m *memBookings) Create(_ context.Context, b models.Booking) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = bson.NewObjectID()
	m.bookings[b.ID] = b
	return b, nil
}

func (m *memBookings) FindByID(_ context.Context, id bson.ObjectID) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return models.Booking{}, repository.ErrNotFound
	}
	return b, nil
}

func (m *memBookings) List(_ context.Context, f repository.BookingFilter) ([]models.Booking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Booking, 0)
	for _, b := range m.bookings {
		if f.UserID != nil && b.UserID != *f.UserID {
			continue
		}
		out = append(out, b)
	}
	return out, int64(len(out)), nil
}

func (m *memBookings) SetStatus(_ context.Context, id bson.ObjectID, from []models.BookingStatus, to models.BookingStatus, now time.Time) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return models.Booking{}, repository.ErrNotFound
	}
	for _, s := range from {
		if b.Status == s {
			b.Status = to
			b.UpdatedAt = now
			m.bookings[id] = b
			return b, nil
		}
	}
	return models.Booking{}, repository.ErrStaleStatus
}

type memRooms struct {
	mu    sync.Mutex
	rooms map[bson.ObjectID]models.Room
}

func (m *memRooms) Create(_ context.Context, r models.Room) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.rooms {
		if other.Slug == r.Slug {
			return models.Room{}, repository.ErrDuplicateSlug
		}
	}
	r.ID = bson.NewObjectID()
	m.rooms[r.ID] = r
	return r, nil
}

func (m *memRooms) FindByIDOrSlug(_ context.Context, key string) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.ID.Hex() == key || r.Slug == key {
			return r, nil
		}
	}
	return models.Room{}, repository.ErrNotFound
}

func (m *memRooms) List(_ context.Context, f repository.RoomFilter) ([]models.Room, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Room, 0)
	for _, r := range m.rooms {
		if f.Featured != nil && r.IsFeatured != *f.Featured {
			continue
		}
		disabled := false
		if f.Disabled != nil {
			disabled = *f.Disabled
		}
		if r.IsDisabled != disabled {
			continue
		}
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

func (m *memRooms) Replace(_ context.Context, r models.Room) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.ID]; !ok {
		return models.Room{}, repository.ErrNotFound
	}
	m.rooms[r.ID] = r
	return r, nil
}

func (m *memRooms) Delete(_ context.Context, id bson.ObjectID) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return models.Room{}, repository.ErrNotFound
	}
	delete(m.rooms, id)
	return r, nil
}
