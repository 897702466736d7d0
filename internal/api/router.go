package api

import (
	"acbridge/internal/api/handlers"
	"acbridge/internal/api/middleware"
	"acbridge/internal/control"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenManager is what the router needs from the token lifecycle manager
type TokenManager interface {
	handlers.TokenManager
	Ready() bool
}

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Appliances control.ApplianceService
	Tokens     TokenManager
	// StaticDir serves the dashboard when set
	StaticDir string
	// TokenRateLimit guards the operator token endpoints; zero uses middleware.StrictLimit
	TokenRateLimit middleware.RateLimitConfig
	// OperatorKey authorizes POST /api/token/refresh and PUT /api/token.
	// Without it those routes are not registered.
	OperatorKey string
	Logger         *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.NoiseFilter(config.Logger))
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.ContentType())

	tokenLimit := config.TokenRateLimit
	if tokenLimit.RequestsPerWindow <= 0 || tokenLimit.Window <= 0 {
		tokenLimit = middleware.StrictLimit
	}
	if tokenLimit.Burst <= 0 {
		tokenLimit.Burst = tokenLimit.RequestsPerWindow
	}
	limitTokens := middleware.RateLimitByIP(tokenLimit, config.Logger)
	ready := middleware.Readiness(config.Tokens.Ready)

	api := router.Group("/api")
	{
		// Health check (always available)
		healthHandler := handlers.NewHealthHandler(config.Tokens.Ready)
		api.GET("/health", healthHandler.GetHealth)

		// Token endpoints
		tokenHandler := handlers.NewTokenHandler(config.Tokens, config.Logger)
		api.GET("/token/status", tokenHandler.GetStatus)
		if config.OperatorKey != "" {
			operator := middleware.OperatorKey(config.OperatorKey, config.Logger)
			api.POST("/token/refresh", limitTokens, operator, ready, tokenHandler.Refresh)
			api.PUT("/token", limitTokens, operator, tokenHandler.Install)
		}

		// Appliance endpoints
		appliances := api.Group("/appliances", ready)
		appliancesHandler := handlers.NewAppliancesHandler(config.Appliances, config.Logger)
		appliances.GET("", appliancesHandler.ListAppliances)
		appliances.GET("/:id/info", appliancesHandler.GetInfo)
		appliances.GET("/:id/state", appliancesHandler.GetState)
		appliances.GET("/:id/capabilities", appliancesHandler.GetCapabilities)
		appliances.PUT("/:id/control", appliancesHandler.Control)
	}

	var static http.Handler
	if config.StaticDir != "" {
		static = http.FileServer(http.Dir(config.StaticDir))
	}

	router.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/api" || strings.HasPrefix(path, "/api/") || static == nil {
			handlers.RespondError(c, http.StatusNotFound, "NOT_FOUND", "Route not found", path)
			return
		}
		static.ServeHTTP(c.Writer, c.Request)
	})

	return router
}
