package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/middleware"
	"github.com/princinho/hostelbackend/models"
)

// Routes holds the handlers and guards the API is mounted with. Nil
// RateLimit, RoomsCache and EventsCache mean no limiting or caching.
type Routes struct {
	Auth     *AuthController
	Rooms    *RoomsController
	Events   *EventsController
	Bookings *BookingsController
	Users    *UsersController

	Authenticate gin.HandlerFunc
	RateLimit    gin.HandlerFunc
	RoomsCache   gin.HandlerFunc
	EventsCache  gin.HandlerFunc
}

func passThrough(h gin.HandlerFunc) gin.HandlerFunc {
	if h == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return h
}

func (rt Routes) Register(r *gin.Engine) {
	limited := passThrough(rt.RateLimit)
	authed := rt.Authenticate
	admin := middleware.RequireRole(models.RoleAdmin)
	roomsCache := passThrough(rt.RoomsCache)
	eventsCache := passThrough(rt.EventsCache)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/signup", limited, rt.Auth.Signup())
		auth.POST("/signin", limited, rt.Auth.Login())
		auth.POST("/google", limited, rt.Auth.GoogleSignIn())
		auth.POST("/logout", authed, rt.Auth.Logout())
		auth.POST("/refresh-token", rt.Auth.Refresh())
		auth.POST("/forgot-password", limited, rt.Auth.ForgotPassword())
		auth.PUT("/reset-password/:token", limited, rt.Auth.ResetPassword())
		auth.PUT("/change-password", authed, rt.Auth.ChangePassword())
		auth.POST("/send-email-verification-link", authed, rt.Auth.SendVerificationLink())
		auth.POST("/resend-email-verification", limited, rt.Auth.ResendVerification())
		// Public: the link is opened from the mailbox, often on a device
		// without a session. The token alone authorizes it.
		auth.GET("/verify-email/:token", rt.Auth.VerifyEmail())
		auth.POST("/generate-otp", limited, rt.Auth.GenerateOTP())
		auth.POST("/verify-otp", limited, rt.Auth.VerifyOTP())
		auth.GET("/me", authed, rt.Auth.Me())
		auth.PATCH("/me", authed, rt.Auth.UpdateProfile())
	}

	room := api.Group("/room")
	{
		room.POST("/create-room", authed, admin, rt.Rooms.Create())
		room.GET("/all-rooms-list", roomsCache, rt.Rooms.List(false))
		room.GET("/featured-rooms-list", roomsCache, rt.Rooms.Featured())
		room.GET("/get-room-by-id-or-slug-name/:id", roomsCache, rt.Rooms.Get())
		room.PUT("/edit-room/:id", authed, admin, rt.Rooms.Update())
		room.DELETE("/delete-room/:id", authed, admin, rt.Rooms.Delete())
	}

	event := api.Group("/event")
	{
		event.GET("", eventsCache, rt.Events.List(false))
		event.GET("/:idOrSlug", eventsCache, rt.Events.Get(false))
		event.POST("", authed, admin, rt.Events.Create())
		event.PATCH("/:id", authed, admin, rt.Events.Update())
		event.DELETE("/:id", authed, admin, rt.Events.Delete())
	}

	booking := api.Group("/booking", authed)
	{
		booking.POST("", rt.Bookings.Create())
		booking.GET("/mine", rt.Bookings.Mine())
		booking.PATCH("/:id/cancel", rt.Bookings.Cancel())
		booking.GET("", admin, rt.Bookings.List())
		booking.PATCH("/:id/status", admin, rt.Bookings.SetStatus())
	}

	adminGroup := api.Group("/admin", authed, admin)
	{
		adminGroup.GET("/users", rt.Users.List())
		adminGroup.PATCH("/users/:id/block", rt.Users.SetBlocked())
		adminGroup.PATCH("/users/:id/role", rt.Users.SetRole())
		adminGroup.DELETE("/users/:id", rt.Users.Delete())
		adminGroup.GET("/rooms", rt.Rooms.List(true))
		adminGroup.GET("/events", rt.Events.List(true))
		adminGroup.GET("/events/:idOrSlug", rt.Events.Get(true))
	}
}
