package middleware

import (
	"acbridge/internal/api/handlers"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OperatorKeyHeader carries the shared secret for credential mutations
const OperatorKeyHeader = "X-Acbridge-Key"

// OperatorKey rejects requests whose X-Acbridge-Key does not match key.
// An empty key rejects everything.
func OperatorKey(key string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(OperatorKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			logger.Warn("Operator key rejected",
				"component", "api",
				"client_ip", c.ClientIP(),
				"path", c.Request.URL.Path,
				"key_present", provided != "",
			)
			handlers.RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid operator key", nil)
			return
		}
		c.Next()
	}
}
