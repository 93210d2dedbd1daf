package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/princinho/hostelbackend/logger"
	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/storage"
	"github.com/princinho/hostelbackend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type RoomInput struct {
	Name          string   `json:"name" validate:"required,max=120"`
	Description   string   `json:"description" validate:"omitempty,max=5000"`
	Type          string   `json:"type" validate:"required,oneof=dorm private suite"`
	PricePerNight float64  `json:"pricePerNight" validate:"gte=0"`
	Capacity      int      `json:"capacity" validate:"min=1,max=100"`
	Beds          int      `json:"beds" validate:"min=1,max=100"`
	Amenities     []string `json:"amenities" validate:"max=50,dive,max=60"`
	IsFeatured    bool     `json:"isFeatured"`
	IsDisabled    bool     `json:"isDisabled"`
}

// RoomUpdate changes only the non-nil fields. RemoveImageUrls must be urls
// the room currently has; others are ignored.
type RoomUpdate struct {
	Name            *string   `json:"name" validate:"omitempty,min=1,max=120"`
	Description     *string   `json:"description" validate:"omitempty,max=5000"`
	Type            *string   `json:"type" validate:"omitempty,oneof=dorm private suite"`
	PricePerNight   *float64  `json:"pricePerNight" validate:"omitempty,gte=0"`
	Capacity        *int      `json:"capacity" validate:"omitempty,min=1,max=100"`
	Beds            *int      `json:"beds" validate:"omitempty,min=1,max=100"`
	Amenities       *[]string `json:"amenities"`
	IsFeatured      *bool     `json:"isFeatured"`
	IsDisabled      *bool     `json:"isDisabled"`
	RemoveImageUrls []string  `json:"removeImageUrls"`
}

type RoomService struct {
	rooms     repository.RoomStore
	uploader  storage.Uploader
	files     *storage.FileValidator
	maxImages int
}

func NewRoomService(rooms repository.RoomStore, uploader storage.Uploader, files *storage.FileValidator, maxImages int) *RoomService {
	if maxImages <= 0 {
		maxImages = 5
	}
	return &RoomService{rooms: rooms, uploader: uploader, files: files, maxImages: maxImages}
}

func (s *RoomService) validateFiles(files []*multipart.FileHeader, verr *ValidationError) {
	for _, fh := range files {
		if _, err := s.files.ValidateFile(fh); err != nil {
			verr.Add("room_images", fmt.Sprintf("%s: %v", fh.Filename, err))
		}
	}
}

func (s *RoomService) Create(ctx context.Context, in RoomInput, files []*multipart.FileHeader) (models.Room, error) {
	in.Name = strings.TrimSpace(in.Name)
	verr := validateStruct(in)
	slug := utils.GenerateSlug(in.Name)
	if in.Name != "" && slug == "" {
		verr.Add("name", "must contain letters or digits")
	}
	if len(files) > s.maxImages {
		verr.Add("room_images", fmt.Sprintf("at most %d images", s.maxImages))
	}
	s.validateFiles(files, verr)
	if err := verr.Err(); err != nil {
		return models.Room{}, err
	}

	urls, err := storage.UploadAll(ctx, s.uploader, "rooms/"+slug, files)
	if err != nil {
		return models.Room{}, fmt.Errorf("upload room images: %w", err)
	}

	room, err := s.rooms.Create(ctx, models.Room{
		Name:          in.Name,
		Slug:          slug,
		Description:   in.Description,
		Type:          models.RoomType(in.Type),
		PricePerNight: in.PricePerNight,
		Capacity:      in.Capacity,
		Beds:          in.Beds,
		Amenities:     in.Amenities,
		ImageUrls:     urls,
		IsFeatured:    in.IsFeatured,
		IsDisabled:    in.IsDisabled,
	})
	if err != nil {
		s.discard(ctx, urls)
		if errors.Is(err, repository.ErrDuplicateSlug) {
			return models.Room{}, fmt.Errorf("%w: a room named %q already exists", ErrConflict, in.Name)
		}
		return models.Room{}, err
	}
	return room, nil
}

func (s *RoomService) Get(ctx context.Context, idOrSlug string) (models.Room, error) {
	room, err := s.rooms.FindByIDOrSlug(ctx, idOrSlug)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Room{}, ErrNotFound
	}
	return room, err
}

func (s *RoomService) List(ctx context.Context, filter repository.RoomFilter) ([]models.Room, int64, error) {
	return s.rooms.List(ctx, filter)
}

func (s *RoomService) Update(ctx context.Context, id string, in RoomUpdate, files []*multipart.FileHeader) (models.Room, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return models.Room{}, ErrNotFound
	}
	room, err := s.rooms.FindByIDOrSlug(ctx, oid.Hex())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Room{}, ErrNotFound
		}
		return models.Room{}, err
	}

	verr := validateStruct(in)
	toRemove := utils.IntersectStrings(in.RemoveImageUrls, room.ImageUrls)
	if n := len(room.ImageUrls) - len(toRemove) + len(files); n > s.maxImages {
		verr.Add("room_images", fmt.Sprintf("at most %d images", s.maxImages))
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if utils.GenerateSlug(name) == "" {
			verr.Add("name", "must contain letters or digits")
		}
		room.Name = name
		room.Slug = utils.GenerateSlug(name)
	}
	s.validateFiles(files, verr)
	if err := verr.Err(); err != nil {
		return models.Room{}, err
	}

	applyRoomUpdate(&room, in)

	added, err := storage.UploadAll(ctx, s.uploader, "rooms/"+room.Slug, files)
	if err != nil {
		return models.Room{}, fmt.Errorf("upload room images: %w", err)
	}
	room.ImageUrls = utils.MergeImageUrlsArrays(room.ImageUrls, toRemove, added)

	updated, err := s.rooms.Replace(ctx, room)
	if err != nil {
		s.discard(ctx, added)
		switch {
		case errors.Is(err, repository.ErrDuplicateSlug):
			return models.Room{}, fmt.Errorf("%w: a room named %q already exists", ErrConflict, room.Name)
		case errors.Is(err, repository.ErrNotFound):
			return models.Room{}, ErrNotFound
		}
		return models.Room{}, err
	}

	s.discard(ctx, toRemove)
	return updated, nil
}

func applyRoomUpdate(room *models.Room, in RoomUpdate) {
	if in.Description != nil {
		room.Description = *in.Description
	}
	if in.Type != nil {
		room.Type = models.RoomType(*in.Type)
	}
	if in.PricePerNight != nil {
		room.PricePerNight = *in.PricePerNight
	}
	if in.Capacity != nil {
		room.Capacity = *in.Capacity
	}
	if in.Beds != nil {
		room.Beds = *in.Beds
	}
	if in.Amenities != nil {
		room.Amenities = *in.Amenities
	}
	if in.IsFeatured != nil {
		room.IsFeatured = *in.IsFeatured
	}
	if in.IsDisabled != nil {
		room.IsDisabled = *in.IsDisabled
	}
}

func (s *RoomService) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	room, err := s.rooms.Delete(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.discard(ctx, room.ImageUrls)
	return nil
}

// discard deletes stored images best effort.
func (s *RoomService) discard(ctx context.Context, urls []string) {
	if len(urls) == 0 {
		return
	}
	if err := storage.DeleteByURL(ctx, s.uploader, urls); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Strs("urls", urls).Msg("failed to delete room images")
	}
}
