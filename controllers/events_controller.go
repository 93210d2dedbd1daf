package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/services"
	"github.com/princinho/hostelbackend/utils"
)

type EventsController struct {
	events     *services.EventService
	invalidate Invalidator
}

func NewEventsController(events *services.EventService, invalidate Invalidator) *EventsController {
	if invalidate == nil {
		invalidate = func(*gin.Context) {}
	}
	return &EventsController{events: events, invalidate: invalidate}
}

// POST /api/event
func (e *EventsController) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body services.EventInput
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		event, err := e.events.Create(c.Request.Context(), body)
		if err != nil {
			respondError(c, err)
			return
		}
		e.invalidate(c)
		c.JSON(http.StatusCreated, event)
	}
}

// List serves GET /api/event for everyone and GET /api/admin/events with
// drafts included. ?upcoming=false also lists past events.
func (e *EventsController) List(includeUnpublished bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := pageFrom(c)
		q := services.EventQuery{
			UpcomingOnly:       true,
			IncludeUnpublished: includeUnpublished,
			Skip:               p.Skip(),
			Limit:              int64(p.Limit),
		}
		upcoming, err := utils.ParseBoolQuery(c.Query("upcoming"))
		if err != nil {
			badRequest(c, "upcoming must be true or false")
			return
		}
		if upcoming != nil {
			q.UpcomingOnly = *upcoming
		}
		events, total, err := e.events.List(c.Request.Context(), q)
		if err != nil {
			respondError(c, err)
			return
		}
		paged(c, events, total, p)
	}
}

// GET /api/event/:idOrSlug
func (e *EventsController) Get(includeUnpublished bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := e.events.Get(c.Request.Context(), c.Param("idOrSlug"), includeUnpublished)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"event": event, "seatsLeft": event.SeatsLeft()})
	}
}

// PATCH /api/event/:id
func (e *EventsController) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body services.EventUpdate
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		event, err := e.events.Update(c.Request.Context(), c.Param("id"), body)
		if err != nil {
			respondError(c, err)
			return
		}
		e.invalidate(c)
		c.JSON(http.StatusOK, event)
	}
}

// DELETE /api/event/:id
func (e *EventsController) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := e.events.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		e.invalidate(c)
		c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
	}
}
