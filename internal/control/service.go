package control

import (
	"acbridge/internal/core"
	"acbridge/internal/devices"
	"context"
	"encoding/json"
)

// ApplianceService is what the HTTP façade needs from the appliance side
type ApplianceService interface {
	ListAppliances(ctx context.Context) (json.RawMessage, error)
	GetApplianceInfo(ctx context.Context, applianceID string) (json.RawMessage, error)
	GetApplianceState(ctx context.Context, applianceID string) (json.RawMessage, error)
	GetApplianceCapabilities(ctx context.Context, applianceID string) (json.RawMessage, error)
	ApplyCommand(ctx context.Context, applianceID string, intent core.CommandIntent, opts Options) (*Result, error)
}

// Service combines the driver's read path with the dispatcher's write path
type Service struct {
	driver     devices.Driver
	dispatcher *Dispatcher
}

// NewService creates an ApplianceService
func NewService(driver devices.Driver, dispatcher *Dispatcher) *Service {
	return &Service{driver: driver, dispatcher: dispatcher}
}

func (s *Service) ListAppliances(ctx context.Context) (json.RawMessage, error) {
	return s.driver.ListAppliances(ctx)
}

func (s *Service) GetApplianceInfo(ctx context.Context, applianceID string) (json.RawMessage, error) {
	return s.driver.GetApplianceInfo(ctx, applianceID)
}

// GetApplianceState returns the vendor's state document as received
func (s *Service) GetApplianceState(ctx context.Context, applianceID string) (json.RawMessage, error) {
	state, err := s.driver.GetApplianceState(ctx, applianceID)
	if err != nil {
		return nil, err
	}
	return state.Raw, nil
}

func (s *Service) GetApplianceCapabilities(ctx context.Context, applianceID string) (json.RawMessage, error) {
	return s.driver.GetApplianceCapabilities(ctx, applianceID)
}

func (s *Service) ApplyCommand(ctx context.Context, applianceID string, intent core.CommandIntent, opts Options) (*Result, error) {
	return s.dispatcher.Apply(ctx, applianceID, intent, opts)
}

var _ ApplianceService = (*Service)(nil)
