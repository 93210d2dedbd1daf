package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/princinho/hostelbackend/logger"
	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/notifier"
	"github.com/princinho/hostelbackend/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type BookingInput struct {
	EventID  string `json:"eventId" validate:"required,len=24,hexadecimal"`
	Seats    int    `json:"seats" validate:"min=1,max=10"`
	FullName string `json:"fullName" validate:"omitempty,max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Message  string `json:"message" validate:"omitempty,max=1000"`
}

type BookingService struct {
	events        repository.EventStore
	bookings      repository.BookingStore
	notifier      notifier.Notifier
	notifyTimeout time.Duration
	now           func() time.Time
}

func NewBookingService(events repository.EventStore, bookings repository.BookingStore, n notifier.Notifier, now func() time.Time) *BookingService {
	if now == nil {
		now = time.Now
	}
	return &BookingService{events: events, bookings: bookings, notifier: n, notifyTimeout: defaultNotifyTimeout, now: now}
}

// Book reserves seats first and records the booking second. If recording
// fails the seats are given back.
func (s *BookingService) Book(ctx context.Context, user models.User, in BookingInput) (models.Booking, error) {
	if err := validateStruct(in).Err(); err != nil {
		return models.Booking{}, err
	}
	eventID, err := bson.ObjectIDFromHex(in.EventID)
	if err != nil {
		return models.Booking{}, invalid("eventId", "must be a valid id")
	}

	now := s.now().UTC()
	event, err := s.events.ReserveSeats(ctx, eventID, in.Seats, now)
	switch {
	case errors.Is(err, repository.ErrNoSeats):
		return models.Booking{}, ErrSoldOut
	case errors.Is(err, repository.ErrNotFound):
		return models.Booking{}, ErrNotFound
	case err != nil:
		return models.Booking{}, fmt.Errorf("reserve seats: %w", err)
	}

	booking, err := s.bookings.Create(ctx, models.Booking{
		EventID:    event.ID,
		EventTitle: event.Title,
		UserID:     user.ID,
		FullName:   firstNonEmpty(strings.TrimSpace(in.FullName), user.FullName, user.Username),
		Email:      firstNonEmpty(strings.TrimSpace(in.Email), user.Email),
		Phone:      firstNonEmpty(strings.TrimSpace(in.Phone), user.Phone),
		Seats:      in.Seats,
		TotalPrice: event.Price * float64(in.Seats),
		Status:     models.BookingStatusPending,
		Message:    in.Message,
	})
	if err != nil {
		if relErr := s.events.ReleaseSeats(ctx, event.ID, in.Seats); relErr != nil {
			logger.FromContext(ctx).Error().Err(relErr).
				Str("event_id", event.ID.Hex()).Int("seats", in.Seats).
				Msg("failed to release seats after booking insert failure")
		}
		return models.Booking{}, fmt.Errorf("create booking: %w", err)
	}

	msg := notifier.BookingConfirmationEmail(booking.Email, booking.FullName, notifier.BookingDetails{
		Reference:  booking.ID.Hex(),
		EventTitle: event.Title,
		StartsAt:   event.StartsAt,
		Venue:      event.Venue,
		Seats:      booking.Seats,
		TotalPrice: booking.TotalPrice,
	})
	if err := deliver(ctx, s.notifier, s.notifyTimeout, msg); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("booking_id", booking.ID.Hex()).Msg("booking notification failed")
	}
	return booking, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *BookingService) Mine(ctx context.Context, userID bson.ObjectID, skip, limit int64) ([]models.Booking, int64, error) {
	return s.bookings.List(ctx, repository.BookingFilter{UserID: &userID, Skip: skip, Limit: limit})
}

func (s *BookingService) List(ctx context.Context, filter repository.BookingFilter) ([]models.Booking, int64, error) {
	return s.bookings.List(ctx, filter)
}

// Cancel is allowed to the booking's owner and to admins.
func (s *BookingService) Cancel(ctx context.Context, actor models.User, bookingID string) (models.Booking, error) {
	booking, err := s.find(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if booking.UserID != actor.ID && actor.Role != models.RoleAdmin {
		return models.Booking{}, ErrForbidden
	}
	return s.cancel(ctx, booking)
}

func (s *BookingService) cancel(ctx context.Context, booking models.Booking) (models.Booking, error) {
	cancelled, err := s.bookings.SetStatus(ctx, booking.ID,
		[]models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed},
		models.BookingStatusCancelled, s.now().UTC())
	if err != nil {
		return models.Booking{}, s.statusErr(err)
	}
	if err := s.events.ReleaseSeats(ctx, booking.EventID, booking.Seats); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("booking_id", booking.ID.Hex()).Msg("failed to release seats")
	}
	return cancelled, nil
}

// SetStatus lets admins confirm a pending booking or cancel an open one.
func (s *BookingService) SetStatus(ctx context.Context, bookingID string, status models.BookingStatus) (models.Booking, error) {
	switch status {
	case models.BookingStatusConfirmed:
		booking, err := s.find(ctx, bookingID)
		if err != nil {
			return models.Booking{}, err
		}
		confirmed, err := s.bookings.SetStatus(ctx, booking.ID,
			[]models.BookingStatus{models.BookingStatusPending},
			models.BookingStatusConfirmed, s.now().UTC())
		if err != nil {
			return models.Booking{}, s.statusErr(err)
		}
		return confirmed, nil
	case models.BookingStatusCancelled:
		booking, err := s.find(ctx, bookingID)
		if err != nil {
			return models.Booking{}, err
		}
		return s.cancel(ctx, booking)
	default:
		return models.Booking{}, invalid("status", "must be one of: CONFIRMED CANCELLED")
	}
}

func (s *BookingService) find(ctx context.Context, bookingID string) (models.Booking, error) {
	id, err := bson.ObjectIDFromHex(bookingID)
	if err != nil {
		return models.Booking{}, ErrNotFound
	}
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Booking{}, ErrNotFound
		}
		return models.Booking{}, err
	}
	return booking, nil
}

func (s *BookingService) statusErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		return fmt.Errorf("%w: booking status does not allow this change", ErrConflict)
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	}
	return err
}
