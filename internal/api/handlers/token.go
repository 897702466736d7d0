package handlers

import (
	"acbridge/internal/core"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenManager is the part of the token lifecycle manager the façade exposes
type TokenManager interface {
	Status() core.TokenStatus
	Refresh(ctx context.Context) (core.TokenSet, error)
	Install(ctx context.Context, accessToken, refreshToken string) (core.TokenSet, error)
}

// TokenHandler handles token status and operator token operations
type TokenHandler struct {
	tokens TokenManager
	logger *slog.Logger
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(tokens TokenManager, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		tokens: tokens,
		logger: logger,
	}
}

// GetStatus returns the token status snapshot
// GET /api/token/status
func (h *TokenHandler) GetStatus(c *gin.Context) {
	RespondOK(c, h.tokens.Status())
}

// Refresh forces a token refresh
// POST /api/token/refresh
func (h *TokenHandler) Refresh(c *gin.Context) {
	if _, err := h.tokens.Refresh(c.Request.Context()); err != nil {
		h.logger.Warn("Manual token refresh failed",
			"component", "api.token",
			"error", err,
		)
		RespondDomainError(c, err, nil)
		return
	}

	h.logger.Info("Manual token refresh completed",
		"component", "api.token",
	)

	RespondOK(c, gin.H{
		"message": "Token refreshed successfully",
		"status":  h.tokens.Status(),
	})
}

// Install replaces the stored credentials
// PUT /api/token
func (h *TokenHandler) Install(c *gin.Context) {
	var req struct {
		AccessToken  string `json:"accessToken" binding:"required"`
		RefreshToken string `json:"refreshToken"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}

	if _, err := h.tokens.Install(c.Request.Context(), strings.TrimSpace(req.AccessToken), strings.TrimSpace(req.RefreshToken)); err != nil {
		h.logger.Error("Failed to install tokens",
			"component", "api.token",
			"error", err,
		)
		RespondDomainError(c, err, nil)
		return
	}

	h.logger.Info("Tokens installed",
		"component", "api.token",
		"has_refresh_token", req.RefreshToken != "",
	)

	RespondOK(c, gin.H{
		"message": "Tokens installed successfully",
		"status":  h.tokens.Status(),
	})
}
