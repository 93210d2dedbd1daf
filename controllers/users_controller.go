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
	"github.com/princinho/hostelbackend/utils"
)

type UsersController struct {
	auth *services.AuthService
}

func NewUsersController(auth *services.AuthService) *UsersController {
	return &UsersController{auth: auth}
}

// GET /api/admin/users
func (u *UsersController) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := pageFrom(c)
		filter := repository.UserFilter{
			Search: strings.TrimSpace(c.Query("q")),
			Role:   models.Role(c.Query("role")),
			Skip:   p.Skip(),
			Limit:  int64(p.Limit),
		}
		if filter.Role != "" && !filter.Role.Valid() {
			badRequest(c, "role must be user or admin")
			return
		}
		blocked, err := utils.ParseBoolQuery(c.Query("blocked"))
		if err != nil {
			badRequest(c, "blocked must be true or false")
			return
		}
		filter.Blocked = blocked
		includeDeleted, err := utils.ParseBoolQuery(c.Query("includeDeleted"))
		if err != nil {
			badRequest(c, "includeDeleted must be true or false")
			return
		}
		if includeDeleted != nil {
			filter.IncludeDeleted = *includeDeleted
		}
		users, total, err := u.auth.ListUsers(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		paged(c, users, total, p)
	}
}

// PATCH /api/admin/users/:id/block
func (u *UsersController) SetBlocked() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.BlockUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "blocked is required")
			return
		}
		user, err := u.auth.SetBlocked(c.Request.Context(), middleware.UserID(c), c.Param("id"), *body.Blocked)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// PATCH /api/admin/users/:id/role
func (u *UsersController) SetRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.SetRoleDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "role is required")
			return
		}
		user, err := u.auth.SetRole(c.Request.Context(), middleware.UserID(c), c.Param("id"), body.Role)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// DELETE /api/admin/users/:id
func (u *UsersController) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := u.auth.DeleteUser(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
	}
}
