// Package controllers adapts HTTP requests to the services. Handlers are
// gin.HandlerFunc factories on small controller structs; every error answer
// is a dto.ErrorResponse.
package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/dto"
	"github.com/princinho/hostelbackend/logger"
	"github.com/princinho/hostelbackend/ratelimit"
	"github.com/princinho/hostelbackend/services"
	"github.com/princinho/hostelbackend/storage"
	"github.com/princinho/hostelbackend/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errorStatusMap = map[error]int{
	services.ErrValidation:            http.StatusBadRequest,
	services.ErrDuplicateEmail:        http.StatusConflict,
	services.ErrInvalidCredentials:    http.StatusUnauthorized,
	services.ErrInvalidSession:        http.StatusUnauthorized,
	services.ErrInvalidOrExpiredToken: http.StatusBadRequest,
	services.ErrInvalidOrExpiredOTP:   http.StatusBadRequest,
	services.ErrUnauthorized:          http.StatusUnauthorized,
	services.ErrBlocked:               http.StatusForbidden,
	services.ErrForbidden:             http.StatusForbidden,
	services.ErrEmailNotVerified:      http.StatusForbidden,
	ratelimit.ErrLimited:              http.StatusTooManyRequests,
	services.ErrNotFound:              http.StatusNotFound,
	services.ErrConflict:              http.StatusConflict,
	services.ErrSoldOut:               http.StatusConflict,
	services.ErrUnavailable:           http.StatusNotImplemented,
	storage.ErrStorageDisabled:        http.StatusServiceUnavailable,
}

func statusFromError(err error) int {
	for target, status := range errorStatusMap {
		if errors.Is(err, target) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes the status mapped from err. Unmapped errors are logged
// and answered with a generic 500 so internals never leak.
func respondError(c *gin.Context, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
		c.JSON(status, dto.NewError(status, "internal server error"))
		return
	}

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		body := dto.NewError(status, "validation failed")
		body.Fields = verr.Fields
		c.JSON(status, body)
		return
	}
	c.JSON(status, dto.NewError(status, err.Error()))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.NewError(http.StatusBadRequest, msg))
}

func pageFrom(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("limit"), defaultPageSize, maxPageSize)
}

func paged[T any](c *gin.Context, items []T, total int64, p utils.Page) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"page":  p.Page,
		"limit": p.Limit,
		"total": total,
	})
}
