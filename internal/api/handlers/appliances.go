package handlers

import (
	"acbridge/internal/control"
	"acbridge/internal/core"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AppliancesHandler proxies appliance reads and applies control intents
type AppliancesHandler struct {
	service control.ApplianceService
	logger  *slog.Logger
}

// NewAppliancesHandler creates a new appliances handler
func NewAppliancesHandler(service control.ApplianceService, logger *slog.Logger) *AppliancesHandler {
	return &AppliancesHandler{
		service: service,
		logger:  logger,
	}
}

// ListAppliances returns the appliances linked to the account
// GET /api/appliances
func (h *AppliancesHandler) ListAppliances(c *gin.Context) {
	raw, err := h.service.ListAppliances(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err, nil)
		return
	}
	RespondOK(c, raw)
}

// GetInfo returns static appliance information
// GET /api/appliances/:id/info
func (h *AppliancesHandler) GetInfo(c *gin.Context) {
	raw, err := h.service.GetApplianceInfo(c.Request.Context(), c.Param("id"))
	h.respondRaw(c, raw, err)
}

// GetState returns the appliance's reported state
// GET /api/appliances/:id/state
func (h *AppliancesHandler) GetState(c *gin.Context) {
	raw, err := h.service.GetApplianceState(c.Request.Context(), c.Param("id"))
	h.respondRaw(c, raw, err)
}

// GetCapabilities returns the appliance's capability model
// GET /api/appliances/:id/capabilities
func (h *AppliancesHandler) GetCapabilities(c *gin.Context) {
	raw, err := h.service.GetApplianceCapabilities(c.Request.Context(), c.Param("id"))
	h.respondRaw(c, raw, err)
}

func (h *AppliancesHandler) respondRaw(c *gin.Context, raw json.RawMessage, err error) {
	if err != nil {
		RespondDomainError(c, err, nil)
		return
	}
	RespondOK(c, raw)
}

// Control applies a sparse command intent
// PUT /api/appliances/:id/control?confirm=true
func (h *AppliancesHandler) Control(c *gin.Context) {
	applianceID := c.Param("id")

	var intent core.CommandIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}

	opts := control.Options{}
	if raw := c.Query("confirm"); raw != "" {
		confirm, err := strconv.ParseBool(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "confirm must be a boolean", raw)
			return
		}
		opts.Confirm = confirm
	}

	result, err := h.service.ApplyCommand(c.Request.Context(), applianceID, intent, opts)
	if err != nil {
		var details any
		if result != nil {
			// steps that did reach the appliance
			details = gin.H{"partial": result}
		}
		RespondDomainError(c, err, details)
		return
	}

	RespondOK(c, result)
}
