package middleware

import (
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// Paths and extensions vulnerability scanners probe on any public host
var (
	scannerPrefixes = []string{
		"/.env", "/.git", "/.aws", "/.well-known",
		"/wp-", "/phpmyadmin", "/admin", "/cgi-bin",
		"/actuator", "/console", "/manager", "/backup",
	}
	scannerExtensions = map[string]bool{
		".php": true, ".asp": true, ".aspx": true, ".jsp": true,
		".bak": true, ".old": true, ".sql": true,
		".zip": true, ".tar": true, ".gz": true,
	}
)

// NoiseFilter marks failed scanner probes against the static dashboard so
// Logging skips them. /api requests are never filtered.
func NoiseFilter(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api/") {
			return
		}

		status := c.Writer.Status()
		if status != http.StatusMethodNotAllowed && !(status >= 400 && isScannerPath(p)) {
			return
		}

		c.Set("skip_logging", true)
		logger.Debug("Scanner request filtered",
			"path", p,
			"method", c.Request.Method,
			"status", status,
			"client_ip", c.ClientIP())
	}
}

func isScannerPath(p string) bool {
	p = strings.ToLower(p)
	for _, prefix := range scannerPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return scannerExtensions[path.Ext(p)]
}
