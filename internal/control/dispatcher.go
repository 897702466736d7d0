// Package control turns a command intent into the sequence of vendor calls
// an appliance accepts, and waits for the reported state to catch up.
package control

import (
	"acbridge/internal/clock"
	"acbridge/internal/core"
	"acbridge/internal/devices"
	"acbridge/internal/idgen"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const DefaultPollInterval = time.Second

// DefaultTimeouts is how long to wait for each field to show up in the
// reported state. Mode changes take the longest on most units.
var DefaultTimeouts = map[string]time.Duration{
	core.FieldMode:               20 * time.Second,
	core.FieldTargetTemperatureC: 15 * time.Second,
	core.FieldFanSpeedSetting:    5 * time.Second,
}

const DefaultFieldTimeout = 10 * time.Second

// Config tunes confirmation polling
type Config struct {
	PollInterval time.Duration
	// Timeouts overrides DefaultTimeouts per field; zero entries are ignored
	Timeouts map[string]time.Duration
	// DefaultTimeout covers fields with no timeout of their own
	DefaultTimeout time.Duration
}

// Options are per-request switches
type Options struct {
	// Confirm also polls after the last command
	Confirm bool
}

// StepResult describes one vendor command of a dispatch
type StepResult struct {
	Field     string             `json:"field"`
	Command   core.CommandIntent `json:"command"`
	Response  json.RawMessage    `json:"response,omitempty"`
	Polled    bool               `json:"polled"`
	Confirmed bool               `json:"confirmed"`
	TimedOut  bool               `json:"timedOut"`
	// Pending lists fields not yet reflected when polling gave up
	Pending []string `json:"pending,omitempty"`
}

// Result is the outcome of Apply
type Result struct {
	CommandID   string       `json:"commandId"`
	ApplianceID string       `json:"applianceId"`
	Profile     string       `json:"profile"`
	Steps       []StepResult `json:"steps"`
}

// ProfileSource resolves the command profile for an appliance
type ProfileSource interface {
	ProfileFor(applianceID string) core.CommandProfile
}

// Dispatcher applies command intents to appliances
type Dispatcher struct {
	driver   devices.Driver
	profiles ProfileSource
	clock    clock.Clock
	config   Config
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(driver devices.Driver, profiles ProfileSource, clk clock.Clock, config Config, logger *slog.Logger) *Dispatcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultFieldTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Dispatcher{
		driver:   driver,
		profiles: profiles,
		clock:    clk,
		config:   config,
		logger:   logger.With("component", "control"),
	}
}

// Apply validates the whole intent, then sends it. Devices that only take one
// field per request get one command per field, each confirmed before the next.
// A send error stops the sequence; the partial result is returned with it.
func (d *Dispatcher) Apply(ctx context.Context, applianceID string, intent core.CommandIntent, opts Options) (*Result, error) {
	profile := d.profiles.ProfileFor(applianceID)
	if err := profile.Validate(intent); err != nil {
		return nil, err
	}

	commands := []core.CommandIntent{intent}
	if profile.SingleFieldCommands {
		commands = intent.Split()
	}

	result := &Result{
		CommandID:   idgen.NewCommand(),
		ApplianceID: applianceID,
		Profile:     profile.Name,
		Steps:       make([]StepResult, 0, len(commands)),
	}
	logger := d.logger.With("command_id", result.CommandID, "appliance_id", applianceID)
	logger.Info("applying command",
		"fields", intent.Fields(),
		"steps", len(commands),
		"profile", profile.Name,
		"confirm", opts.Confirm)

	for i, cmd := range commands {
		step := StepResult{
			Field:   strings.Join(cmd.Fields(), ","),
			Command: cmd,
		}

		resp, err := d.driver.SendCommand(ctx, applianceID, cmd)
		if err != nil {
			logger.Error("command step failed", "step", i+1, "field", step.Field, "error", err)
			return result, fmt.Errorf("step %d (%s): %w", i+1, step.Field, err)
		}
		step.Response = resp

		last := i == len(commands)-1
		if !last || opts.Confirm {
			step.Polled = true
			pending, err := d.waitFor(ctx, applianceID, cmd)
			if err != nil {
				result.Steps = append(result.Steps, step)
				return result, err
			}
			step.Confirmed = len(pending) == 0
			step.TimedOut = !step.Confirmed
			step.Pending = pending
			if step.TimedOut {
				logger.Warn("state did not confirm command before timeout",
					"step", i+1,
					"field", step.Field,
					"pending", pending)
			}
		}

		result.Steps = append(result.Steps, step)
	}

	logger.Info("command applied", "steps", len(result.Steps))
	return result, nil
}

// waitFor polls the appliance state until cmd is reflected or the field's
// timeout elapses. It returns the fields still pending; only context
// cancellation is an error.
func (d *Dispatcher) waitFor(ctx context.Context, applianceID string, cmd core.CommandIntent) ([]string, error) {
	timeout := d.timeoutFor(cmd)
	deadline := d.clock.NewTimer(timeout)
	defer deadline.Stop()
	ticker := d.clock.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	pending := cmd.Fields()
	for {
		select {
		case <-ctx.Done():
			return pending, ctx.Err()
		case <-deadline.C:
			return pending, nil
		case <-ticker.C:
		}

		state, err := d.driver.GetApplianceState(ctx, applianceID)
		if err != nil {
			// A failed poll is not a failed command; keep trying until the deadline.
			d.logger.Warn("state poll failed", "appliance_id", applianceID, "error", err)
			continue
		}
		pending = state.Mismatched(cmd)
		if len(pending) == 0 {
			return nil, nil
		}
	}
}

func (d *Dispatcher) timeoutFor(cmd core.CommandIntent) time.Duration {
	var longest time.Duration
	for _, field := range cmd.Fields() {
		t := d.config.Timeouts[field]
		if t <= 0 {
			t = DefaultTimeouts[field]
		}
		if t <= 0 {
			t = d.config.DefaultTimeout
		}
		if t > longest {
			longest = t
		}
	}
	return longest
}
