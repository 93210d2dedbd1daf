package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/dto"
	"github.com/princinho/hostelbackend/logger"
	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/tokens"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	ctxUserID = "userID"
	ctxRole   = "role"
	ctxUser   = "user"
)

type TokenVerifier interface {
	Verify(raw string, kind tokens.Kind) (tokens.Claims, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id bson.ObjectID) (models.User, error)
}

// Authenticate admits requests carrying a valid access token for an existing,
// unblocked user. The handler chain is never reached otherwise.
func Authenticate(verifier TokenVerifier, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			RecordAuthEvent("access", "missing_token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewError(http.StatusUnauthorized, "missing token"))
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, err := verifier.Verify(tokenStr, tokens.KindAccess)
		if err != nil {
			RecordAuthEvent("access", "invalid_token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewError(http.StatusUnauthorized, "invalid or expired token"))
			return
		}

		id, err := bson.ObjectIDFromHex(claims.UserID())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewError(http.StatusUnauthorized, "invalid or expired token"))
			return
		}

		ctx := c.Request.Context()
		user, err := users.FindByID(ctx, id)
		switch {
		case errors.Is(err, repository.ErrNotFound), err == nil && user.IsDeleted():
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewError(http.StatusUnauthorized, "account not found"))
			return
		case err != nil:
			logger.FromContext(ctx).Error().Err(err).Str("user_id", id.Hex()).Msg("failed to load user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewError(http.StatusInternalServerError, "internal server error"))
			return
		}
		if user.IsBlocked {
			RecordAuthEvent("access", "blocked")
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewError(http.StatusForbidden, "account is blocked"))
			return
		}

		// role comes from the stored user so demotions apply immediately
		c.Set(ctxUserID, user.ID.Hex())
		c.Set(ctxRole, string(user.Role))
		c.Set(ctxUser, user)
		c.Next()
	}
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(c.GetString(ctxRole))
		if !slices.Contains(roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewError(http.StatusForbidden, "forbidden"))
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ctxUser)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}
