package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/notifier"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memUsers is an in-memory UserStore with the same semantics as the Mongo
// one, including the unique email constraint.
type memUsers struct {
	mu    sync.Mutex
	now   func() time.Time
	users map[bson.ObjectID]models.User

	failUpdate error
}

func newMemUsers(now func() time.Time) *memUsers {
	return &memUsers{now: now, users: make(map[bson.ObjectID]models.User)}
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = utils.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email && !u.IsDeleted() {
			return u, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (m *memUsers) FindByID(_ context.Context, id bson.ObjectID) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) FindByGoogleID(_ context.Context, googleID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if googleID != "" && u.GoogleID == googleID && !u.IsDeleted() {
			return u, nil
		}
	}
	return models.User{}, repository.ErrNotFound
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
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	user.CreatedAt = m.now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(_ context.Context, id bson.ObjectID, patch repository.UserPatch) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return models.User{}, m.failUpdate
	}
	u, ok := m.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	patch.Apply(&u, m.now())
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
		patch.Apply(&u, m.now())
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

func (m *memUsers) List(_ context.Context, f repository.UserFilter) ([]models.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0)
	for _, u := range m.users {
		if u.IsDeleted() && !f.IncludeDeleted {
			continue
		}
		if f.Search != "" && !strings.Contains(u.Email, strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, int64(len(out)), nil
}

func (m *memUsers) get(id bson.ObjectID) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notifier.Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg notifier.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingNotifier) last() notifier.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return notifier.Message{}
	}
	return r.msgs[len(r.msgs)-1]
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// stallingNotifier never completes on its own; it returns once ctx ends.
type stallingNotifier struct{}

func (stallingNotifier) Notify(ctx context.Context, _ notifier.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeGoogle struct {
	identity GoogleIdentity
	err      error
}

func (f fakeGoogle) Verify(context.Context, string) (GoogleIdentity, error) {
	return f.identity, f.err
}

type memEvents struct {
	mu     sync.Mutex
	events map[bson.ObjectID]models.Event

	releaseErr error
}

func newMemEvents() *memEvents {
	return &memEvents{events: make(map[bson.ObjectID]models.Event)}
}

func (m *memEvents) Create(_ context.Context, e models.Event) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.events {
		if other.Slug == e.Slug {
			return models.Event{}, repository.ErrDuplicateSlug
		}
	}
	if e.ID.IsZero() {
		e.ID = bson.NewObjectID()
	}
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

func (m *memEvents) FindByID(_ context.Context, id bson.ObjectID) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return models.Event{}, repository.ErrNotFound
	}
	return e, nil
}

func (m *memEvents) List(_ context.Context, f repository.EventFilter) ([]models.Event, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Event, 0)
	for _, e := range m.events {
		if f.PublishedOnly && !e.IsPublished {
			continue
		}
		if f.UpcomingAfter != nil && !e.StartsAt.After(*f.UpcomingAfter) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, int64(len(out)), nil
}

func (m *memEvents) Replace(_ context.Context, e models.Event) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[e.ID]
	if !ok {
		return models.Event{}, repository.ErrNotFound
	}
	for id, other := range m.events {
		if id != e.ID && other.Slug == e.Slug {
			return models.Event{}, repository.ErrDuplicateSlug
		}
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
	if m.releaseErr != nil {
		return m.releaseErr
	}
	e, ok := m.events[id]
	if !ok || e.SeatsBooked < seats {
		return repository.ErrNotFound
	}
	e.SeatsBooked -= seats
	m.events[id] = e
	return nil
}

func (m *memEvents) seatsBooked(id bson.ObjectID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id].SeatsBooked
}

type memBookings struct {
	mu        sync.Mutex
	bookings  map[bson.ObjectID]models.Booking
	createErr error
}

func newMemBookings() *memBookings {
	return &memBookings{bookings: make(map[bson.ObjectID]models.Booking)}
}

func (m *memBookings) Create(_ context.Context, b models.Booking) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return models.Booking{}, m.createErr
	}
	if b.ID.IsZero() {
		b.ID = bson.NewObjectID()
	}
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
	allowed := false
	for _, s := range from {
		if b.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return models.Booking{}, repository.ErrStaleStatus
	}
	b.Status = to
	b.UpdatedAt = now
	if to == models.BookingStatusCancelled {
		b.CancelledAt = &now
	}
	m.bookings[id] = b
	return b, nil
}

var errBoom = errors.New("boom")
