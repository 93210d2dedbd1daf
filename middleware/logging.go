package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/princinho/hostelbackend/logger"
	"github.com/rs/zerolog"
)

const TraceIDHeader = "X-Trace-ID"

// RequestLogger attaches a child logger carrying the trace id to the request
// context and logs one line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		l := log.GetChildLogger()
		l.UpdateContext(func(zc zerolog.Context) zerolog.Context {
			return zc.Str("trace_id", traceID)
		})
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Header(TraceIDHeader, traceID)

		start := time.Now()
		c.Next()

		event := l.Info()
		if c.Writer.Status() >= 500 {
			event = l.Error()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("uri", c.Request.RequestURI).
			Str("method", c.Request.Method).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Int("size", c.Writer.Size()).
			Send()
	}
}
