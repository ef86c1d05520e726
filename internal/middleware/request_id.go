package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cutout/internal/pkg/logging"
)

const (
	RequestIDHeader = "X-Request-Id"
	// RequestIDKey holds the id in the gin context.
	RequestIDKey = "request_id"
)

// RequestID propagates an incoming X-Request-Id or generates one. The id is
// echoed on the response and a logger carrying it is put on the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		logger := logging.FromContext(c.Request.Context()).With("request_id", id)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}
