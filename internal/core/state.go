package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// TemperatureTolerance is how far a reported temperature may be from the
// requested one and still count as applied.
const TemperatureTolerance = 0.05

// ApplianceState is the vendor's reported state with every enum canonicalized.
type ApplianceState struct {
	ApplianceID         string          `json:"applianceId,omitempty"`
	ConnectionState     string          `json:"connectionState,omitempty"`
	ApplianceState      string          `json:"applianceState,omitempty"`
	Mode                Mode            `json:"mode,omitempty"`
	TargetTemperatureC  *float64        `json:"targetTemperatureC,omitempty"`
	AmbientTemperatureC *float64        `json:"ambientTemperatureC,omitempty"`
	FanSpeedSetting     FanSpeed        `json:"fanSpeedSetting,omitempty"`
	VerticalSwing       Toggle          `json:"verticalSwing,omitempty"`
	SleepMode           Toggle          `json:"sleepMode,omitempty"`
	UILockMode          Toggle          `json:"uiLockMode,omitempty"`
	StartTime           *int            `json:"startTime,omitempty"`
	StopTime            *int            `json:"stopTime,omitempty"`
	Raw                 json.RawMessage `json:"-"`
}

// ParseApplianceState normalizes a state payload. Values are read from
// properties.reported, falling back to the top level for flat payloads.
func ParseApplianceState(raw []byte) (*ApplianceState, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse appliance state: %w", err)
	}

	reported := doc
	if props, ok := doc["properties"].(map[string]any); ok {
		if r, ok := props["reported"].(map[string]any); ok {
			reported = r
		}
	}

	lookup := func(key string) any {
		if v, ok := reported[key]; ok {
			return v
		}
		return doc[key]
	}

	state := &ApplianceState{
		ApplianceID:     stringValue(doc["applianceId"]),
		ConnectionState: strings.ToUpper(stringValue(lookup("connectionState"))),
		ApplianceState:  strings.ToUpper(stringValue(lookup("applianceState"))),
		Mode:            ParseMode(stringValue(lookup("mode"))),
		FanSpeedSetting: ParseFanSpeed(stringValue(lookup("fanSpeedSetting"))),
		Raw:             json.RawMessage(raw),
	}
	state.TargetTemperatureC = floatValue(lookup("targetTemperatureC"))
	state.AmbientTemperatureC = floatValue(lookup("ambientTemperatureC"))
	state.VerticalSwing, _ = ParseToggle(lookup("verticalSwing"))
	state.SleepMode, _ = ParseToggle(lookup("sleepMode"))
	state.UILockMode, _ = ParseToggle(lookup("uiLockMode"))
	if v := floatValue(lookup("startTime")); v != nil {
		n := int(*v)
		state.StartTime = &n
	}
	if v := floatValue(lookup("stopTime")); v != nil {
		n := int(*v)
		state.StopTime = &n
	}

	return state, nil
}

// IsRunning reports whether the unit is powered on.
func (s *ApplianceState) IsRunning() bool {
	return s.ApplianceState != "" && s.ApplianceState != "OFF"
}

// Mismatched returns the fields of expected that the state does not reflect yet.
func (s *ApplianceState) Mismatched(expected CommandIntent) []string {
	var out []string
	for _, field := range expected.Fields() {
		if !s.matches(expected, field) {
			out = append(out, field)
		}
	}
	return out
}

func (s *ApplianceState) matches(c CommandIntent, field string) bool {
	switch field {
	case FieldExecuteCommand:
		if *c.ExecuteCommand == ToggleOn {
			return s.IsRunning()
		}
		return s.ApplianceState == "OFF"
	case FieldMode:
		return s.Mode == *c.Mode
	case FieldTargetTemperatureC:
		return s.TargetTemperatureC != nil &&
			math.Abs(*s.TargetTemperatureC-*c.TargetTemperatureC) <= TemperatureTolerance
	case FieldFanSpeedSetting:
		return s.FanSpeedSetting == *c.FanSpeedSetting
	case FieldVerticalSwing:
		return s.VerticalSwing == *c.VerticalSwing
	case FieldSleepMode:
		return s.SleepMode == *c.SleepMode
	case FieldUILockMode:
		return s.UILockMode == *c.UILockMode
	case FieldStartTime:
		return s.StartTime != nil && *s.StartTime == *c.StartTime
	case FieldStopTime:
		return s.StopTime != nil && *s.StopTime == *c.StopTime
	}
	return false
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "ON"
		}
		return "OFF"
	}
	return ""
}

func floatValue(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	}
	return nil
}
