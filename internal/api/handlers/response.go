package handlers

import (
	"acbridge/internal/core"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the error half of the response envelope
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope wraps every /api response
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// RespondOK writes a success envelope
func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// RespondError writes an error envelope and aborts the chain
func RespondError(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error: &ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	})
}

// RespondDomainError maps err to its HTTP status and writes it
func RespondDomainError(c *gin.Context, err error, details any) {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}

	var invalid *core.InvalidCommandError
	if errors.As(err, &invalid) && details == nil {
		details = gin.H{"field": invalid.Field, "reason": invalid.Reason}
	}
	var vendorErr *core.VendorError
	if errors.As(err, &vendorErr) && details == nil {
		details = gin.H{"vendorStatus": vendorErr.Status}
	}

	c.Error(err)
	RespondError(c, status, code, message, details)
}

// StatusFor maps a domain error to an HTTP status and error code
func StatusFor(err error) (int, string) {
	var invalid *core.InvalidCommandError
	var vendorErr *core.VendorError

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "INVALID_COMMAND"
	case errors.Is(err, core.ErrNoAccessToken):
		return http.StatusUnauthorized, "NO_ACCESS_TOKEN"
	case errors.Is(err, core.ErrNoRefreshToken):
		return http.StatusUnauthorized, "NO_REFRESH_TOKEN"
	case errors.Is(err, core.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED"
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, core.ErrApplianceDisconnected):
		return http.StatusConflict, "APPLIANCE_DISCONNECTED"
	case errors.Is(err, core.ErrRemoteControlDisabled):
		return http.StatusConflict, "REMOTE_CONTROL_DISABLED"
	case errors.Is(err, core.ErrCommandNotAllowed):
		return http.StatusConflict, "COMMAND_NOT_ALLOWED"
	case errors.Is(err, core.ErrCommandRejected):
		return http.StatusConflict, "COMMAND_REJECTED"
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, core.ErrRefreshTimeout):
		return http.StatusGatewayTimeout, "REFRESH_TIMEOUT"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, core.ErrRefreshFailed):
		return http.StatusBadGateway, "REFRESH_FAILED"
	case errors.Is(err, core.ErrNetwork):
		return http.StatusBadGateway, "NETWORK_ERROR"
	case errors.As(err, &vendorErr):
		return http.StatusBadGateway, "VENDOR_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
