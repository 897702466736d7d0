package electrolux

import (
	"acbridge/internal/core"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// vendorMessage extracts a human-readable message from an error body.
func vendorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, m := range []string{payload.Message, payload.Detail, payload.Error} {
			if m != "" {
				return m
			}
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return msg
	}
	return http.StatusText(status)
}

// mapStatus converts a non-2xx vendor response into the error taxonomy.
func mapStatus(status int, body []byte) error {
	msg := vendorMessage(status, body)
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", core.ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", core.ErrForbidden, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", core.ErrNotFound, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", core.ErrRateLimited, msg)
	}
	return &core.VendorError{Status: status, Message: msg}
}

// mapCommandStatus is mapStatus for command sends, where 406 carries the
// reason the appliance refused. Substring matching is advisory; the vendor
// does not document stable codes.
func mapCommandStatus(status int, body []byte) error {
	msg := vendorMessage(status, body)
	switch status {
	case http.StatusNotAcceptable:
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "disconnected"):
			return fmt.Errorf("%w: %s", core.ErrApplianceDisconnected, msg)
		case strings.Contains(lower, "remote control disabled"):
			return fmt.Errorf("%w: enable it on the unit or in the vendor app: %s", core.ErrRemoteControlDisabled, msg)
		case strings.Contains(lower, "access not allowed"):
			return fmt.Errorf("%w: the unit may be off or the command conflicts with its state: %s", core.ErrCommandNotAllowed, msg)
		}
		return fmt.Errorf("%w: check the unit supports this command in its current state: %s", core.ErrCommandRejected, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: check the API key and access token: %s", core.ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: the token may be expired or lack control permission for this appliance: %s", core.ErrForbidden, msg)
	}
	return mapStatus(status, body)
}
