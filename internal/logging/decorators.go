package logging

import (
	"acbridge/internal/control"
	"acbridge/internal/core"
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// ApplianceServiceLogger wraps an ApplianceService and logs all method calls
type ApplianceServiceLogger struct {
	service control.ApplianceService
	logger  *slog.Logger
}

// NewApplianceServiceLogger creates a new logging decorator for ApplianceService
func NewApplianceServiceLogger(service control.ApplianceService, logger *slog.Logger) control.ApplianceService {
	return &ApplianceServiceLogger{
		service: service,
		logger:  logger.With("interface", "ApplianceService"),
	}
}

// forRequest tags log lines with the HTTP request ID when the call came in
// through the API
func (l *ApplianceServiceLogger) forRequest(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return l.logger.With("request_id", id)
	}
	return l.logger
}

func (l *ApplianceServiceLogger) ListAppliances(ctx context.Context) (json.RawMessage, error) {
	logger := l.forRequest(ctx)
	start := time.Now()
	logger.Debug("ListAppliances called")

	raw, err := l.service.ListAppliances(ctx)
	duration := time.Since(start)

	if err != nil {
		logger.Error("ListAppliances failed",
			"duration", duration,
			"error", err)
		return nil, err
	}

	logger.Debug("ListAppliances completed",
		"bytes", len(raw),
		"duration", duration)

	return raw, nil
}

func (l *ApplianceServiceLogger) GetApplianceInfo(ctx context.Context, applianceID string) (json.RawMessage, error) {
	return l.read(ctx, "GetApplianceInfo", applianceID, l.service.GetApplianceInfo)
}

func (l *ApplianceServiceLogger) GetApplianceState(ctx context.Context, applianceID string) (json.RawMessage, error) {
	return l.read(ctx, "GetApplianceState", applianceID, l.service.GetApplianceState)
}

func (l *ApplianceServiceLogger) GetApplianceCapabilities(ctx context.Context, applianceID string) (json.RawMessage, error) {
	return l.read(ctx, "GetApplianceCapabilities", applianceID, l.service.GetApplianceCapabilities)
}

func (l *ApplianceServiceLogger) read(ctx context.Context, method, applianceID string, fn func(context.Context, string) (json.RawMessage, error)) (json.RawMessage, error) {
	logger := l.forRequest(ctx)
	start := time.Now()
	logger.Debug(method+" called", "appliance_id", applianceID)

	raw, err := fn(ctx, applianceID)
	duration := time.Since(start)

	if err != nil {
		logger.Error(method+" failed",
			"appliance_id", applianceID,
			"duration", duration,
			"error", err)
		return nil, err
	}

	logger.Debug(method+" completed",
		"appliance_id", applianceID,
		"duration", duration)

	return raw, nil
}

func (l *ApplianceServiceLogger) ApplyCommand(ctx context.Context, applianceID string, intent core.CommandIntent, opts control.Options) (*control.Result, error) {
	logger := l.forRequest(ctx)
	start := time.Now()
	logger.Info("ApplyCommand called",
		"appliance_id", applianceID,
		"fields", intent.Fields(),
		"confirm", opts.Confirm)

	result, err := l.service.ApplyCommand(ctx, applianceID, intent, opts)
	duration := time.Since(start)

	if err != nil {
		logger.Error("ApplyCommand failed",
			"appliance_id", applianceID,
			"fields", intent.Fields(),
			"duration", duration,
			"error", err)
		return result, err
	}

	logger.Info("ApplyCommand completed",
		"appliance_id", applianceID,
		"command_id", result.CommandID,
		"steps", len(result.Steps),
		"duration", duration)

	return result, nil
}
