package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/dto"
	"github.com/princinho/hostelbackend/middleware"
	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/services"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type BookingsController struct {
	bookings   *services.BookingService
	invalidate Invalidator
}

func NewBookingsController(bookings *services.BookingService, invalidate Invalidator) *BookingsController {
	if invalidate == nil {
		invalidate = func(*gin.Context) {}
	}
	return &BookingsController{bookings: bookings, invalidate: invalidate}
}

func currentUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, services.ErrUnauthorized)
	}
	return user, ok
}

// POST /api/booking
func (b *BookingsController) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var body services.BookingInput
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		booking, err := b.bookings.Book(c.Request.Context(), user, body)
		if err != nil {
			respondError(c, err)
			return
		}
		// seat counts in cached event listings are stale now
		b.invalidate(c)
		c.JSON(http.StatusCreated, booking)
	}
}

// GET /api/booking/mine
func (b *BookingsController) Mine() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		p := pageFrom(c)
		bookings, total, err := b.bookings.Mine(c.Request.Context(), user.ID, p.Skip(), int64(p.Limit))
		if err != nil {
			respondError(c, err)
			return
		}
		paged(c, bookings, total, p)
	}
}

// GET /api/booking (admin) filters by ?eventId= and ?status=.
func (b *BookingsController) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := pageFrom(c)
		filter := repository.BookingFilter{Skip: p.Skip(), Limit: int64(p.Limit)}
		if raw := strings.TrimSpace(c.Query("eventId")); raw != "" {
			id, err := bson.ObjectIDFromHex(raw)
			if err != nil {
				badRequest(c, "invalid eventId")
				return
			}
			filter.EventID = &id
		}
		if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
			status := models.BookingStatus(raw)
			if !status.Valid() {
				badRequest(c, "invalid status")
				return
			}
			filter.Status = status
		}
		bookings, total, err := b.bookings.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		paged(c, bookings, total, p)
	}
}

// PATCH /api/booking/:id/cancel
func (b *BookingsController) Cancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		booking, err := b.bookings.Cancel(c.Request.Context(), user, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		b.invalidate(c)
		c.JSON(http.StatusOK, booking)
	}
}

// PATCH /api/booking/:id/status (admin)
func (b *BookingsController) SetStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.UpdateBookingStatusDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "status is required")
			return
		}
		status := models.BookingStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
		booking, err := b.bookings.SetStatus(c.Request.Context(), c.Param("id"), status)
		if err != nil {
			respondError(c, err)
			return
		}
		b.invalidate(c)
		c.JSON(http.StatusOK, booking)
	}
}
