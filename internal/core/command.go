package core

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Mode is the operating mode of an air conditioner, always upper case.
type Mode string

const (
	ModeAuto    Mode = "AUTO"
	ModeCool    Mode = "COOL"
	ModeDry     Mode = "DRY"
	ModeFanOnly Mode = "FANONLY"
	ModeHeat    Mode = "HEAT"
	ModeOff     Mode = "OFF"
)

// FanSpeed is the fan speed setting, always upper case.
type FanSpeed string

const (
	FanSpeedLow    FanSpeed = "LOW"
	FanSpeedMiddle FanSpeed = "MIDDLE"
	FanSpeedHigh   FanSpeed = "HIGH"
	FanSpeedAuto   FanSpeed = "AUTO"
)

// Toggle is an ON/OFF flag. The vendor mixes "on", "ON" and booleans;
// everything is folded into these two values on ingestion.
type Toggle string

const (
	ToggleOn  Toggle = "ON"
	ToggleOff Toggle = "OFF"
)

// ParseMode canonicalizes a mode string.
func ParseMode(s string) Mode {
	return Mode(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseFanSpeed canonicalizes a fan speed string.
func ParseFanSpeed(s string) FanSpeed {
	return FanSpeed(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseToggle canonicalizes a toggle given as a string or a boolean.
// Unknown strings are upper-cased and left for validation to reject.
func ParseToggle(v any) (Toggle, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return ToggleOn, true
		}
		return ToggleOff, true
	case string:
		s := strings.ToUpper(strings.TrimSpace(t))
		switch s {
		case "TRUE":
			return ToggleOn, true
		case "FALSE":
			return ToggleOff, true
		case "":
			return "", false
		}
		return Toggle(s), true
	}
	return "", false
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("mode must be a string: %w", err)
	}
	*m = ParseMode(s)
	return nil
}

func (f *FanSpeed) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("fan speed must be a string: %w", err)
	}
	*f = ParseFanSpeed(s)
	return nil
}

func (t *Toggle) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, ok := ParseToggle(v)
	if !ok {
		return fmt.Errorf("toggle must be a string or boolean, got %s", string(data))
	}
	*t = parsed
	return nil
}

// Command fields in the order they are sent when an intent is split.
// Power goes first so that later settings land on a running unit.
const (
	FieldExecuteCommand     = "executeCommand"
	FieldMode               = "mode"
	FieldTargetTemperatureC = "targetTemperatureC"
	FieldFanSpeedSetting    = "fanSpeedSetting"
	FieldVerticalSwing      = "verticalSwing"
	FieldSleepMode          = "sleepMode"
	FieldUILockMode         = "uiLockMode"
	FieldStartTime          = "startTime"
	FieldStopTime           = "stopTime"
)

var commandFieldOrder = []string{
	FieldExecuteCommand,
	FieldMode,
	FieldTargetTemperatureC,
	FieldFanSpeedSetting,
	FieldVerticalSwing,
	FieldSleepMode,
	FieldUILockMode,
	FieldStartTime,
	FieldStopTime,
}

// CommandIntent is one user-requested change. Nil fields are left untouched;
// the JSON form is exactly the vendor's command payload.
type CommandIntent struct {
	ExecuteCommand     *Toggle   `json:"executeCommand,omitempty"`
	Mode               *Mode     `json:"mode,omitempty"`
	TargetTemperatureC *float64  `json:"targetTemperatureC,omitempty"`
	FanSpeedSetting    *FanSpeed `json:"fanSpeedSetting,omitempty"`
	VerticalSwing      *Toggle   `json:"verticalSwing,omitempty"`
	SleepMode          *Toggle   `json:"sleepMode,omitempty"`
	UILockMode         *Toggle   `json:"uiLockMode,omitempty"`
	StartTime          *int      `json:"startTime,omitempty"`
	StopTime           *int      `json:"stopTime,omitempty"`
}

// Fields returns the names of the fields set on the intent, in send order.
func (c CommandIntent) Fields() []string {
	fields := make([]string, 0, len(commandFieldOrder))
	for _, f := range commandFieldOrder {
		if c.has(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// IsEmpty reports whether no field is set.
func (c CommandIntent) IsEmpty() bool {
	return len(c.Fields()) == 0
}

// Split breaks the intent into single-field intents in send order.
func (c CommandIntent) Split() []CommandIntent {
	fields := c.Fields()
	out := make([]CommandIntent, 0, len(fields))
	for _, f := range fields {
		out = append(out, c.only(f))
	}
	return out
}

func (c CommandIntent) has(field string) bool {
	switch field {
	case FieldExecuteCommand:
		return c.ExecuteCommand != nil
	case FieldMode:
		return c.Mode != nil
	case FieldTargetTemperatureC:
		return c.TargetTemperatureC != nil
	case FieldFanSpeedSetting:
		return c.FanSpeedSetting != nil
	case FieldVerticalSwing:
		return c.VerticalSwing != nil
	case FieldSleepMode:
		return c.SleepMode != nil
	case FieldUILockMode:
		return c.UILockMode != nil
	case FieldStartTime:
		return c.StartTime != nil
	case FieldStopTime:
		return c.StopTime != nil
	}
	return false
}

func (c CommandIntent) only(field string) CommandIntent {
	var out CommandIntent
	switch field {
	case FieldExecuteCommand:
		out.ExecuteCommand = c.ExecuteCommand
	case FieldMode:
		out.Mode = c.Mode
	case FieldTargetTemperatureC:
		out.TargetTemperatureC = c.TargetTemperatureC
	case FieldFanSpeedSetting:
		out.FanSpeedSetting = c.FanSpeedSetting
	case FieldVerticalSwing:
		out.VerticalSwing = c.VerticalSwing
	case FieldSleepMode:
		out.SleepMode = c.SleepMode
	case FieldUILockMode:
		out.UILockMode = c.UILockMode
	case FieldStartTime:
		out.StartTime = c.StartTime
	case FieldStopTime:
		out.StopTime = c.StopTime
	}
	return out
}

// CommandProfile is the validation table for one device class.
// Ranges differ between model generations, so they are data, not constants.
type CommandProfile struct {
	Name      string
	Modes     []Mode
	FanSpeeds []FanSpeed

	MinTemperatureC float64
	MaxTemperatureC float64
	// TemperatureStepC of zero accepts any value inside the range.
	TemperatureStepC float64

	MaxTimerSeconds  int
	TimerStepSeconds int

	// SingleFieldCommands is set for firmware that rejects multi-field payloads.
	SingleFieldCommands bool
}

var defaultModes = []Mode{ModeAuto, ModeCool, ModeDry, ModeFanOnly, ModeHeat}
var defaultFanSpeeds = []FanSpeed{FanSpeedLow, FanSpeedMiddle, FanSpeedHigh, FanSpeedAuto}

// DefaultProfile matches the capability model reported by current units.
func DefaultProfile() CommandProfile {
	return CommandProfile{
		Name:                "default",
		Modes:               slices.Clone(defaultModes),
		FanSpeeds:           slices.Clone(defaultFanSpeeds),
		MinTemperatureC:     16,
		MaxTemperatureC:     32,
		TemperatureStepC:    1,
		MaxTimerSeconds:     86400,
		TimerStepSeconds:    1800,
		SingleFieldCommands: true,
	}
}

// FineProfile is for variants that report Fahrenheit-derived Celsius steps.
func FineProfile() CommandProfile {
	p := DefaultProfile()
	p.Name = "fine"
	p.MinTemperatureC = 15.56
	p.MaxTemperatureC = 32.22
	p.TemperatureStepC = 0
	return p
}

// LegacyProfile is for older firmware that accepts OFF as a mode and
// multi-field payloads.
func LegacyProfile() CommandProfile {
	p := DefaultProfile()
	p.Name = "legacy"
	p.Modes = append(p.Modes, ModeOff)
	p.SingleFieldCommands = false
	return p
}

const temperatureEpsilon = 1e-6

// Validate checks every set field of the intent and returns the first
// failure as an *InvalidCommandError.
func (p CommandProfile) Validate(c CommandIntent) error {
	if c.IsEmpty() {
		return &InvalidCommandError{Reason: "command has no fields"}
	}

	if c.ExecuteCommand != nil {
		if err := validateToggle(FieldExecuteCommand, *c.ExecuteCommand); err != nil {
			return err
		}
	}

	if c.Mode != nil && !slices.Contains(p.Modes, *c.Mode) {
		return &InvalidCommandError{
			Field:  FieldMode,
			Reason: fmt.Sprintf("%q not supported, valid modes: %s", *c.Mode, joinValues(p.Modes)),
		}
	}

	if c.TargetTemperatureC != nil {
		if err := p.validateTemperature(*c.TargetTemperatureC); err != nil {
			return err
		}
	}

	if c.FanSpeedSetting != nil && !slices.Contains(p.FanSpeeds, *c.FanSpeedSetting) {
		return &InvalidCommandError{
			Field:  FieldFanSpeedSetting,
			Reason: fmt.Sprintf("%q not supported, valid speeds: %s", *c.FanSpeedSetting, joinValues(p.FanSpeeds)),
		}
	}

	for _, tf := range []struct {
		field string
		value *Toggle
	}{
		{FieldVerticalSwing, c.VerticalSwing},
		{FieldSleepMode, c.SleepMode},
		{FieldUILockMode, c.UILockMode},
	} {
		if tf.value == nil {
			continue
		}
		if err := validateToggle(tf.field, *tf.value); err != nil {
			return err
		}
	}

	if c.StartTime != nil {
		if err := p.validateTimer(FieldStartTime, *c.StartTime); err != nil {
			return err
		}
	}
	if c.StopTime != nil {
		if err := p.validateTimer(FieldStopTime, *c.StopTime); err != nil {
			return err
		}
	}

	return nil
}

func (p CommandProfile) validateTemperature(t float64) error {
	if math.IsNaN(t) || t < p.MinTemperatureC-temperatureEpsilon || t > p.MaxTemperatureC+temperatureEpsilon {
		return &InvalidCommandError{
			Field: FieldTargetTemperatureC,
			Reason: fmt.Sprintf("%s°C outside valid range %s-%s°C",
				formatFloat(t), formatFloat(p.MinTemperatureC), formatFloat(p.MaxTemperatureC)),
		}
	}
	if p.TemperatureStepC > 0 {
		n := (t - p.MinTemperatureC) / p.TemperatureStepC
		if math.Abs(n-math.Round(n)) > temperatureEpsilon {
			return &InvalidCommandError{
				Field:  FieldTargetTemperatureC,
				Reason: fmt.Sprintf("%s°C is not a multiple of %s°C", formatFloat(t), formatFloat(p.TemperatureStepC)),
			}
		}
	}
	return nil
}

func (p CommandProfile) validateTimer(field string, seconds int) error {
	if seconds < 0 || seconds > p.MaxTimerSeconds {
		return &InvalidCommandError{
			Field:  field,
			Reason: fmt.Sprintf("%d outside valid range 0-%d seconds", seconds, p.MaxTimerSeconds),
		}
	}
	if p.TimerStepSeconds > 0 && seconds%p.TimerStepSeconds != 0 {
		return &InvalidCommandError{
			Field:  field,
			Reason: fmt.Sprintf("%d is not a multiple of %d seconds", seconds, p.TimerStepSeconds),
		}
	}
	return nil
}

func validateToggle(field string, v Toggle) error {
	if v != ToggleOn && v != ToggleOff {
		return &InvalidCommandError{Field: field, Reason: fmt.Sprintf("%q must be ON or OFF", v)}
	}
	return nil
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
