package services

import (
	"context"
	"testing"
	"time"

	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type bookingFixture struct {
	svc      *BookingService
	events   *memEvents
	bookings *memBookings
	notes    *recordingNotifier
	clock    *fakeClock
	event    models.Event
}

func newBookingFixture(t *testing.T, capacity int) *bookingFixture {
	t.Helper()
	clock := newFakeClock()
	events := newMemEvents()
	bookings := newMemBookings()
	notes := &recordingNotifier{}

	event, err := events.Create(context.Background(), models.Event{
		Title:       "Rooftop Jazz",
		Slug:        "rooftop-jazz",
		Venue:       "Roof terrace",
		StartsAt:    clock.Now().Add(48 * time.Hour),
		EndsAt:      clock.Now().Add(51 * time.Hour),
		Price:       12.5,
		Capacity:    capacity,
		IsPublished: true,
	})
	require.NoError(t, err)

	return &bookingFixture{
		svc:      NewBookingService(events, bookings, notes, clock.Now),
		events:   events,
		bookings: bookings,
		notes:    notes,
		clock:    clock,
		event:    event,
	}
}

func guest(email string) models.User {
	return models.User{ID: bson.NewObjectID(), FullName: "Guest " + email, Email: email, Role: models.RoleUser}
}

func TestBook(t *testing.T) {
	f := newBookingFixture(t, 5)
	user := guest("wendy@example.com")

	b, err := f.svc.Book(context.Background(), user, BookingInput{EventID: f.event.ID.Hex(), Seats: 2})
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusPending, b.Status)
	assert.Equal(t, user.ID, b.UserID)
	assert.Equal(t, "wendy@example.com", b.Email)
	assert.Equal(t, "Guest wendy@example.com", b.FullName)
	assert.Equal(t, "Rooftop Jazz", b.EventTitle)
	assert.InDelta(t, 25.0, b.TotalPrice, 0.001)
	assert.Equal(t, 2, f.events.seatsBooked(f.event.ID))

	msg := f.notes.last()
	assert.Equal(t, notifier.KindBookingConfirmation, msg.Kind)
	assert.Equal(t, "wendy@example.com", msg.To)
	assert.Contains(t, msg.Body, b.ID.Hex())
}

func TestBookContactOverrides(t *testing.T) {
	f := newBookingFixture(t, 5)
	b, err := f.svc.Book(context.Background(), guest("xavi@example.com"), BookingInput{
		EventID:  f.event.ID.Hex(),
		Seats:    1,
		FullName: " Xavier ",
		Email:    "front-desk@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Xavier", b.FullName)
	assert.Equal(t, "front-desk@example.com", b.Email)
}

func TestBookSoldOut(t *testing.T) {
	f := newBookingFixture(t, 3)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, guest("a@example.com"), BookingInput{EventID: f.event.ID.Hex(), Seats: 2})
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, guest("b@example.com"), BookingInput{EventID: f.event.ID.Hex(), Seats: 2})
	assert.ErrorIs(t, err, ErrSoldOut)
	assert.Equal(t, 2, f.events.seatsBooked(f.event.ID))

	_, err = f.svc.Book(ctx, guest("b@example.com"), BookingInput{EventID: f.event.ID.Hex(), Seats: 1})
	assert.NoError(t, err)
	assert.Equal(t, 3, f.events.seatsBooked(f.event.ID))
}

func TestBookRejectsUnbookableEvents(t *testing.T) {
	f := newBookingFixture(t, 3)
	ctx := context.Background()
	user := guest("c@example.com")

	_, err := f.svc.Book(ctx, user, BookingInput{EventID: bson.NewObjectID().Hex(), Seats: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Book(ctx, user, BookingInput{EventID: "nope", Seats: 1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Book(ctx, user, BookingInput{EventID: f.event.ID.Hex(), Seats: 0})
	assert.ErrorIs(t, err, ErrValidation)

	f.clock.Advance(48 * time.Hour)
	_, err = f.svc.Book(ctx, user, BookingInput{EventID: f.event.ID.Hex(), Seats: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookReleasesSeatsWhenInsertFails(t *testing.T) {
	f := newBookingFixture(t, 3)
	f.bookings.createErr = errBoom

	_, err := f.svc.Book(context.Background(), guest("d@example.com"), BookingInput{EventID: f.event.ID.Hex(), Seats: 2})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, f.events.seatsBooked(f.event.ID))
	assert.Zero(t, f.notes.count())
}

func TestBookSurvivesNotifierFailure(t *testing.T) {
	f := newBookingFixture(t, 3)
	f.notes.err = errBoom

	_, err := f.svc.Book(context.Background(), guest("e@example.com"), BookingInput{EventID: f.event.ID.Hex(), Seats: 1})
	assert.NoError(t, err)
}

func TestBookNotDelayedByStalledNotifier(t *testing.T) {
	f := newBookingFixture(t, 3)
	f.svc.notifier = stallingNotifier{}
	f.svc.notifyTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := f.svc.Book(context.Background(), guest("f@example.com"), BookingInput{EventID: f.event.ID.Hex(), Seats: 1})
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCancelBooking(t *testing.T) {
	f := newBookingFixture(t, 4)
	ctx := context.Background()
	owner := guest("owner@example.com")
	stranger := guest("stranger@example.com")
	admin := guest("admin@example.com")
	admin.Role = models.RoleAdmin

	b, err := f.svc.Book(ctx, owner, BookingInput{EventID: f.event.ID.Hex(), Seats: 3})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, stranger, b.ID.Hex())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 3, f.events.seatsBooked(f.event.ID))

	cancelled, err := f.svc.Cancel(ctx, owner, b.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 0, f.events.seatsBooked(f.event.ID))

	// seats are only given back once
	_, err = f.svc.Cancel(ctx, admin, b.ID.Hex())
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 0, f.events.seatsBooked(f.event.ID))

	_, err = f.svc.Cancel(ctx, owner, bson.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetBookingStatus(t *testing.T) {
	f := newBookingFixture(t, 4)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, guest("f@example.com"), BookingInput{EventID: f.event.ID.Hex(), Seats: 1})
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, b.ID.Hex(), models.BookingStatusPending)
	assert.ErrorIs(t, err, ErrValidation)

	confirmed, err := f.svc.SetStatus(ctx, b.ID.Hex(), models.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)

	_, err = f.svc.SetStatus(ctx, b.ID.Hex(), models.BookingStatusConfirmed)
	assert.ErrorIs(t, err, ErrConflict)

	cancelled, err := f.svc.SetStatus(ctx, b.ID.Hex(), models.BookingStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 0, f.events.seatsBooked(f.event.ID))

	_, err = f.svc.SetStatus(ctx, b.ID.Hex(), models.BookingStatusConfirmed)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMineListsOnlyOwnBookings(t *testing.T) {
	f := newBookingFixture(t, 10)
	ctx := context.Background()
	me, other := guest("me@example.com"), guest("other@example.com")

	for i := 0; i < 2; i++ {
		_, err := f.svc.Book(ctx, me, BookingInput{EventID: f.event.ID.Hex(), Seats: 1})
		require.NoError(t, err)
	}
	_, err := f.svc.Book(ctx, other, BookingInput{EventID: f.event.ID.Hex(), Seats: 1})
	require.NoError(t, err)

	mine, total, err := f.svc.Mine(ctx, me.ID, 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, b := range mine {
		assert.Equal(t, me.ID, b.UserID)
	}
}
