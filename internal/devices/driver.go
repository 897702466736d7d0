package devices

import (
	"acbridge/internal/core"
	"context"
	"encoding/json"
)

// Driver is the vendor API surface used by the control dispatcher and the
// HTTP façade. Read operations return the vendor's JSON untouched.
type Driver interface {
	ListAppliances(ctx context.Context) (json.RawMessage, error)
	GetApplianceInfo(ctx context.Context, applianceID string) (json.RawMessage, error)
	GetApplianceCapabilities(ctx context.Context, applianceID string) (json.RawMessage, error)

	// GetApplianceState returns the normalized state; the raw payload is kept in State.Raw
	GetApplianceState(ctx context.Context, applianceID string) (*core.ApplianceState, error)

	// SendCommand validates the intent against the appliance's profile and
	// sends it as a single payload
	SendCommand(ctx context.Context, applianceID string, intent core.CommandIntent) (json.RawMessage, error)
}
