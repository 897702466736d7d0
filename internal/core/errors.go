package core

import (
	"errors"
	"fmt"
)

// Vendor call failures
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited by vendor")
	ErrNetwork      = errors.New("network error")
)

// Command rejections reported by the vendor with HTTP 406
var (
	ErrApplianceDisconnected = errors.New("appliance is disconnected and cannot receive commands")
	ErrRemoteControlDisabled = errors.New("remote control is disabled on this appliance")
	ErrCommandNotAllowed     = errors.New("command not allowed in the appliance's current state")
	ErrCommandRejected       = errors.New("command rejected by appliance")
)

// Token lifecycle failures
var (
	ErrNoAccessToken       = errors.New("no access token configured")
	ErrNoRefreshToken      = errors.New("no refresh token configured")
	ErrRefreshTokenExpired = errors.New("refresh token has expired - install new credentials")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrRefreshTimeout      = errors.New("timed out waiting for token refresh")
)

// VendorError is an HTTP failure from the vendor API with no more specific mapping.
type VendorError struct {
	Status  int
	Message string
}

func (e *VendorError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("vendor API error %d", e.Status)
	}
	return fmt.Sprintf("vendor API error %d: %s", e.Status, e.Message)
}

// InvalidCommandError is raised before any network call when an intent fails validation.
type InvalidCommandError struct {
	Field  string
	Reason string
}

func (e *InvalidCommandError) Error() string {
	if e.Field == "" {
		return "invalid command: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsFatalAuth reports errors that need an operator to install new credentials.
func IsFatalAuth(err error) bool {
	return errors.Is(err, ErrRefreshTokenExpired) || errors.Is(err, ErrNoAccessToken)
}
