package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type EventInput struct {
	Title       string    `json:"title" validate:"required,max=160"`
	Description string    `json:"description" validate:"omitempty,max=5000"`
	Venue       string    `json:"venue" validate:"required,max=200"`
	StartsAt    time.Time `json:"startsAt" validate:"required"`
	EndsAt      time.Time `json:"endsAt" validate:"required"`
	Price       float64   `json:"price" validate:"gte=0"`
	Capacity    int       `json:"capacity" validate:"min=1,max=100000"`
	ImageUrl    string    `json:"imageUrl" validate:"omitempty,url"`
	IsPublished bool      `json:"isPublished"`
}

type EventUpdate struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=160"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Venue       *string    `json:"venue" validate:"omitempty,min=1,max=200"`
	StartsAt    *time.Time `json:"startsAt"`
	EndsAt      *time.Time `json:"endsAt"`
	Price       *float64   `json:"price" validate:"omitempty,gte=0"`
	Capacity    *int       `json:"capacity" validate:"omitempty,min=1,max=100000"`
	ImageUrl    *string    `json:"imageUrl" validate:"omitempty,url"`
	IsPublished *bool      `json:"isPublished"`
}

type EventService struct {
	events repository.EventStore
	now    func() time.Time
}

func NewEventService(events repository.EventStore, now func() time.Time) *EventService {
	if now == nil {
		now = time.Now
	}
	return &EventService{events: events, now: now}
}

func (s *EventService) Create(ctx context.Context, in EventInput) (models.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	verr := validateStruct(in)
	slug := utils.GenerateSlug(in.Title)
	if in.Title != "" && slug == "" {
		verr.Add("title", "must contain letters or digits")
	}
	if !in.StartsAt.IsZero() && !in.EndsAt.After(in.StartsAt) {
		verr.Add("endsAt", "must be after startsAt")
	}
	if err := verr.Err(); err != nil {
		return models.Event{}, err
	}

	event, err := s.events.Create(ctx, models.Event{
		Title:       in.Title,
		Slug:        slug,
		Description: in.Description,
		Venue:       in.Venue,
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      in.EndsAt.UTC(),
		Price:       in.Price,
		Capacity:    in.Capacity,
		ImageUrl:    in.ImageUrl,
		IsPublished: in.IsPublished,
	})
	if errors.Is(err, repository.ErrDuplicateSlug) {
		return models.Event{}, fmt.Errorf("%w: an event titled %q already exists", ErrConflict, in.Title)
	}
	return event, err
}

// Get hides unpublished events from everyone but admins.
func (s *EventService) Get(ctx context.Context, idOrSlug string, includeUnpublished bool) (models.Event, error) {
	event, err := s.events.FindByIDOrSlug(ctx, idOrSlug)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !event.IsPublished && !includeUnpublished) {
		return models.Event{}, ErrNotFound
	}
	return event, err
}

type EventQuery struct {
	UpcomingOnly       bool
	IncludeUnpublished bool
	Skip               int64
	Limit              int64
}

func (s *EventService) List(ctx context.Context, q EventQuery) ([]models.Event, int64, error) {
	filter := repository.EventFilter{
		PublishedOnly: !q.IncludeUnpublished,
		Skip:          q.Skip,
		Limit:         q.Limit,
	}
	if q.UpcomingOnly {
		now := s.now().UTC()
		filter.UpcomingAfter = &now
	}
	return s.events.List(ctx, filter)
}

func (s *EventService) Update(ctx context.Context, id string, in EventUpdate) (models.Event, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return models.Event{}, ErrNotFound
	}
	event, err := s.events.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Event{}, ErrNotFound
		}
		return models.Event{}, err
	}

	verr := validateStruct(in)
	if in.Title != nil {
		event.Title = strings.TrimSpace(*in.Title)
		event.Slug = utils.GenerateSlug(event.Title)
		if event.Slug == "" {
			verr.Add("title", "must contain letters or digits")
		}
	}
	if in.Description != nil {
		event.Description = *in.Description
	}
	if in.Venue != nil {
		event.Venue = *in.Venue
	}
	if in.StartsAt != nil {
		event.StartsAt = in.StartsAt.UTC()
	}
	if in.EndsAt != nil {
		event.EndsAt = in.EndsAt.UTC()
	}
	if in.Price != nil {
		event.Price = *in.Price
	}
	if in.Capacity != nil {
		if *in.Capacity < event.SeatsBooked {
			verr.Add("capacity", fmt.Sprintf("must be at least the %d seats already booked", event.SeatsBooked))
		}
		event.Capacity = *in.Capacity
	}
	if in.ImageUrl != nil {
		event.ImageUrl = *in.ImageUrl
	}
	if in.IsPublished != nil {
		event.IsPublished = *in.IsPublished
	}
	if !event.EndsAt.After(event.StartsAt) {
		verr.Add("endsAt", "must be after startsAt")
	}
	if err := verr.Err(); err != nil {
		return models.Event{}, err
	}

	updated, err := s.events.Replace(ctx, event)
	switch {
	case errors.Is(err, repository.ErrDuplicateSlug):
		return models.Event{}, fmt.Errorf("%w: an event titled %q already exists", ErrConflict, event.Title)
	case errors.Is(err, repository.ErrNotFound):
		return models.Event{}, ErrNotFound
	}
	return updated, err
}

// Delete refuses events that still hold booked seats.
func (s *EventService) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	event, err := s.events.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if event.SeatsBooked > 0 {
		return fmt.Errorf("%w: event has %d booked seats", ErrConflict, event.SeatsBooked)
	}
	if _, err := s.events.Delete(ctx, oid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
