package middleware

import (
	"acbridge/internal/api/handlers"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR envelope and logs
// the stack. A panic with http.ErrAbortHandler is re-raised so the server
// drops the connection.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			logger.Error("Panic recovered",
				"component", "api",
				"request_id", c.GetString(RequestIDKey),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			handlers.RespondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
		}()
		c.Next()
	}
}
