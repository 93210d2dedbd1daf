package controllers

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/logger"
	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/services"
	"github.com/princinho/hostelbackend/utils"
)

const roomImagesField = "room_images"

// Invalidator drops cached listings after a write.
type Invalidator func(c *gin.Context)

type RoomsController struct {
	rooms      *services.RoomService
	invalidate Invalidator
}

func NewRoomsController(rooms *services.RoomService, invalidate Invalidator) *RoomsController {
	if invalidate == nil {
		invalidate = func(*gin.Context) {}
	}
	return &RoomsController{rooms: rooms, invalidate: invalidate}
}

// bindMultipart decodes the JSON "data" field into v and returns the
// uploaded room images.
func bindMultipart(c *gin.Context, v any) ([]*multipart.FileHeader, bool) {
	data := c.PostForm("data")
	if data == "" {
		badRequest(c, "missing data field")
		return nil, false
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		badRequest(c, "invalid JSON in data field")
		return nil, false
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, true
	}
	return form.File[roomImagesField], true
}

// POST /api/room/create-room
func (r *RoomsController) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body services.RoomInput
		files, ok := bindMultipart(c, &body)
		if !ok {
			return
		}
		room, err := r.rooms.Create(c.Request.Context(), body, files)
		if err != nil {
			respondError(c, err)
			return
		}
		r.invalidate(c)
		c.JSON(http.StatusCreated, room)
	}
}

// List serves GET /api/room/all-rooms-list, which only ever shows enabled
// rooms, and GET /api/admin/rooms, where ?isDisabled=true lists the
// disabled ones.
func (r *RoomsController) List(includeDisabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := pageFrom(c)
		filter := repository.RoomFilter{
			Type:  models.RoomType(strings.TrimSpace(c.Query("type"))),
			Sort:  strings.TrimSpace(c.Query("sort")),
			Skip:  p.Skip(),
			Limit: int64(p.Limit),
		}
		featured, err := utils.ParseBoolQuery(c.Query("featured"))
		if err != nil {
			badRequest(c, "featured must be true or false")
			return
		}
		filter.Featured = featured
		if includeDisabled {
			disabled, err := utils.ParseBoolQuery(c.Query("isDisabled"))
			if err != nil {
				badRequest(c, "isDisabled must be true or false")
				return
			}
			filter.Disabled = disabled
		}
		r.list(c, filter, p)
	}
}

// GET /api/room/featured-rooms-list
func (r *RoomsController) Featured() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := pageFrom(c)
		featured := true
		r.list(c, repository.RoomFilter{Featured: &featured, Skip: p.Skip(), Limit: int64(p.Limit)}, p)
	}
}

func (r *RoomsController) list(c *gin.Context, filter repository.RoomFilter, p utils.Page) {
	rooms, total, err := r.rooms.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, rooms, total, p)
}

// GET /api/room/get-room-by-id-or-slug-name/:id
func (r *RoomsController) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		room, err := r.rooms.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

// PUT /api/room/edit-room/:id
func (r *RoomsController) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body services.RoomUpdate
		files, ok := bindMultipart(c, &body)
		if !ok {
			return
		}
		room, err := r.rooms.Update(c.Request.Context(), c.Param("id"), body, files)
		if err != nil {
			respondError(c, err)
			return
		}
		r.invalidate(c)
		c.JSON(http.StatusOK, room)
	}
}

// DELETE /api/room/delete-room/:id
func (r *RoomsController) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := r.rooms.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		r.invalidate(c)
		logger.FromContext(c.Request.Context()).Info().Str("room_id", c.Param("id")).Msg("room deleted")
		c.JSON(http.StatusOK, gin.H{"message": "room deleted"})
	}
}
