package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCommandIntent_UnmarshalNormalizes(t *testing.T) {
	var intent CommandIntent
	err := json.Unmarshal([]byte(`{
		"mode": "cool",
		"fanSpeedSetting": " Auto ",
		"verticalSwing": true,
		"sleepMode": "off",
		"uiLockMode": false,
		"executeCommand": "on",
		"targetTemperatureC": 24
	}`), &intent)
	require.NoError(t, err)

	assert.Equal(t, ModeCool, *intent.Mode)
	assert.Equal(t, FanSpeedAuto, *intent.FanSpeedSetting)
	assert.Equal(t, ToggleOn, *intent.VerticalSwing)
	assert.Equal(t, ToggleOff, *intent.SleepMode)
	assert.Equal(t, ToggleOff, *intent.UILockMode)
	assert.Equal(t, ToggleOn, *intent.ExecuteCommand)
	assert.Equal(t, 24.0, *intent.TargetTemperatureC)
	assert.Nil(t, intent.StartTime)
}

func TestCommandIntent_MarshalIsVendorPayload(t *testing.T) {
	intent := CommandIntent{Mode: ptr(ModeHeat), TargetTemperatureC: ptr(22.0)}

	data, err := json.Marshal(intent)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"HEAT","targetTemperatureC":22}`, string(data))
}

func TestCommandIntent_Split(t *testing.T) {
	intent := CommandIntent{
		TargetTemperatureC: ptr(24.0),
		Mode:               ptr(ModeCool),
		ExecuteCommand:     ptr(ToggleOn),
	}

	assert.Equal(t, []string{FieldExecuteCommand, FieldMode, FieldTargetTemperatureC}, intent.Fields())

	parts := intent.Split()
	require.Len(t, parts, 3)
	for i, part := range parts {
		assert.Len(t, part.Fields(), 1, "part %d should carry one field", i)
	}
	assert.Equal(t, ToggleOn, *parts[0].ExecuteCommand)
	assert.Equal(t, ModeCool, *parts[1].Mode)
	assert.Equal(t, 24.0, *parts[2].TargetTemperatureC)
}

func TestCommandProfile_Validate(t *testing.T) {
	def := DefaultProfile()

	tests := []struct {
		name      string
		profile   CommandProfile
		intent    CommandIntent
		wantField string
	}{
		{name: "valid mode and temperature", profile: def, intent: CommandIntent{Mode: ptr(ModeCool), TargetTemperatureC: ptr(24.0)}},
		{name: "empty intent", profile: def, intent: CommandIntent{}, wantField: ""},
		{name: "unknown mode", profile: def, intent: CommandIntent{Mode: ptr(Mode("TURBO"))}, wantField: FieldMode},
		{name: "off mode rejected by default", profile: def, intent: CommandIntent{Mode: ptr(ModeOff)}, wantField: FieldMode},
		{name: "off mode allowed by legacy", profile: LegacyProfile(), intent: CommandIntent{Mode: ptr(ModeOff)}},
		{name: "temperature below range", profile: def, intent: CommandIntent{TargetTemperatureC: ptr(15.0)}, wantField: FieldTargetTemperatureC},
		{name: "temperature above range", profile: def, intent: CommandIntent{TargetTemperatureC: ptr(32.5)}, wantField: FieldTargetTemperatureC},
		{name: "temperature off step", profile: def, intent: CommandIntent{TargetTemperatureC: ptr(24.5)}, wantField: FieldTargetTemperatureC},
		{name: "temperature bounds inclusive", profile: def, intent: CommandIntent{TargetTemperatureC: ptr(32.0)}},
		{name: "fine profile accepts fractional", profile: FineProfile(), intent: CommandIntent{TargetTemperatureC: ptr(15.56)}},
		{name: "fine profile upper bound", profile: FineProfile(), intent: CommandIntent{TargetTemperatureC: ptr(32.23)}, wantField: FieldTargetTemperatureC},
		{name: "invalid fan speed", profile: def, intent: CommandIntent{FanSpeedSetting: ptr(FanSpeed("TURBO"))}, wantField: FieldFanSpeedSetting},
		{name: "invalid swing", profile: def, intent: CommandIntent{VerticalSwing: ptr(Toggle("MAYBE"))}, wantField: FieldVerticalSwing},
		{name: "invalid execute command", profile: def, intent: CommandIntent{ExecuteCommand: ptr(Toggle("START"))}, wantField: FieldExecuteCommand},
		{name: "timer on grid", profile: def, intent: CommandIntent{StartTime: ptr(3600), StopTime: ptr(86400)}},
		{name: "start timer off grid", profile: def, intent: CommandIntent{StartTime: ptr(1000)}, wantField: FieldStartTime},
		{name: "stop timer negative", profile: def, intent: CommandIntent{StopTime: ptr(-1800)}, wantField: FieldStopTime},
		{name: "stop timer too large", profile: def, intent: CommandIntent{StopTime: ptr(88200)}, wantField: FieldStopTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate(tt.intent)
			if tt.wantField == "" && !tt.intent.IsEmpty() {
				assert.NoError(t, err)
				return
			}

			var invalid *InvalidCommandError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.wantField, invalid.Field)
			assert.NotEmpty(t, invalid.Reason)
		})
	}
}

func TestCommandProfile_ValidateEveryTemperatureOutsideRange(t *testing.T) {
	profile := DefaultProfile()
	for temp := -10.0; temp <= 50; temp += 0.5 {
		err := profile.Validate(CommandIntent{TargetTemperatureC: ptr(temp)})
		inRange := temp >= 16 && temp <= 32 && temp == float64(int(temp))
		if inRange {
			assert.NoError(t, err, "temperature %v", temp)
		} else {
			assert.Error(t, err, "temperature %v", temp)
		}
	}
}

func TestParseToggle(t *testing.T) {
	tests := []struct {
		in     any
		want   Toggle
		wantOK bool
	}{
		{"on", ToggleOn, true},
		{"ON", ToggleOn, true},
		{"Off", ToggleOff, true},
		{true, ToggleOn, true},
		{false, ToggleOff, true},
		{"true", ToggleOn, true},
		{"", "", false},
		{nil, "", false},
		{42.0, "", false},
	}

	for _, tt := range tests {
		got, ok := ParseToggle(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %v", tt.in)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
	}
}
