package middleware

import (
	"acbridge/internal/api/handlers"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContentType requires application/json on requests that carry a body.
// Bodyless POSTs such as a token refresh pass through.
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !hasBody(c.Request) {
			c.Next()
			return
		}

		mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mediaType != "application/json" {
			handlers.RespondError(c, http.StatusUnsupportedMediaType, "INVALID_CONTENT_TYPE",
				"Content-Type must be application/json", c.GetHeader("Content-Type"))
			return
		}
		c.Next()
	}
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		// -1 means unknown length, e.g. chunked
		return r.ContentLength != 0
	default:
		return false
	}
}
