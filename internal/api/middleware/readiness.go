package middleware

import (
	"acbridge/internal/api/handlers"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Readiness rejects requests with 503 until ready reports true
func Readiness(ready func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ready() {
			handlers.RespondError(c, http.StatusServiceUnavailable, "API_NOT_INITIALIZED",
				"Vendor API is not initialized; install tokens with PUT /api/token", nil)
			return
		}
		c.Next()
	}
}
