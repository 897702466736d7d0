package middleware

import (
	"acbridge/internal/idgen"
	"acbridge/internal/logging"

	"github.com/gin-gonic/gin"
)

const RequestIDKey = "X-Request-ID"

const maxRequestIDLength = 64

// RequestID propagates the caller's X-Request-ID when it looks sane and
// generates one otherwise. The ID reaches handlers through the gin context and
// services through the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDKey)
		if !validRequestID(requestID) {
			requestID = idgen.New()
		}

		c.Header(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// validRequestID accepts short printable ASCII IDs so they are safe to log
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
