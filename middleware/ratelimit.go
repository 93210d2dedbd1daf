package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/dto"
	"github.com/princinho/hostelbackend/logger"
	"github.com/princinho/hostelbackend/ratelimit"
)

type KeyFunc func(c *gin.Context) string

// ClientRouteKey limits each client IP separately on each route.
func ClientRouteKey(c *gin.Context) string {
	return c.ClientIP() + ":" + c.FullPath()
}

// RateLimit rejects requests over the limiter's budget with 429. When the
// limiter itself fails the request is let through.
func RateLimit(limiter ratelimit.Limiter, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientRouteKey
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res, err := limiter.Allow(ctx, key(c))
		if err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("route", c.FullPath()).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			RecordAuthEvent("rate_limit", "rejected")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewError(http.StatusTooManyRequests, res.Err().Error()))
			return
		}
		c.Next()
	}
}
