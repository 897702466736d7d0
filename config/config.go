package config

import (
	"acbridge/internal/core"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// EnvPrefix prefixes every environment override, e.g. ACBRIDGE_SERVER_PORT
const EnvPrefix = "ACBRIDGE"

// Token store backends
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Vendor  VendorConfig  `mapstructure:"vendor"`
	Tokens  TokensConfig  `mapstructure:"tokens"`
	Control ControlConfig `mapstructure:"control"`
	Logging LoggingConfig `mapstructure:"logging"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
	// TokenRateLimit is requests per minute per IP on the operator token endpoints
	TokenRateLimit int `mapstructure:"token_rate_limit"`
	// TokenRoutes enables PUT /api/token and POST /api/token/refresh,
	// which require OperatorKey in the X-Acbridge-Key header
	TokenRoutes bool   `mapstructure:"token_routes"`
	OperatorKey string `mapstructure:"operator_key"`
}

// VendorConfig contains Electrolux API settings
type VendorConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	AccessToken       string        `mapstructure:"access_token"`
	RefreshToken      string        `mapstructure:"refresh_token"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// TokensConfig contains token persistence and renewal settings
type TokensConfig struct {
	Store            string        `mapstructure:"store"`
	FilePath         string        `mapstructure:"file_path"`
	DBPath           string        `mapstructure:"db_path"`
	EnvFile          string        `mapstructure:"env_file"`
	SyncEnv          bool          `mapstructure:"sync_env"`
	WatchFile        bool          `mapstructure:"watch_file"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	RefreshBuffer    time.Duration `mapstructure:"refresh_buffer"`
	RefreshWait      time.Duration `mapstructure:"refresh_wait"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
}

// ControlConfig contains command validation and confirmation settings
type ControlConfig struct {
	PollInterval    time.Duration            `mapstructure:"poll_interval"`
	ConfirmTimeouts ConfirmTimeoutsConfig    `mapstructure:"confirm_timeouts"`
	DefaultProfile  string                   `mapstructure:"default_profile"`
	Appliances      []ApplianceConfig        `mapstructure:"appliances"`
	Profiles        map[string]ProfileConfig `mapstructure:"profiles"`
}

// ConfirmTimeoutsConfig bounds how long confirmation polling waits for each
// field. Default applies to every field without its own entry.
type ConfirmTimeoutsConfig struct {
	Mode               time.Duration `mapstructure:"mode"`
	TargetTemperatureC time.Duration `mapstructure:"target_temperature_c"`
	FanSpeedSetting    time.Duration `mapstructure:"fan_speed_setting"`
	Default            time.Duration `mapstructure:"default"`
}

// PerField returns the timeouts keyed by command field name
func (t ConfirmTimeoutsConfig) PerField() map[string]time.Duration {
	return map[string]time.Duration{
		core.FieldMode:               t.Mode,
		core.FieldTargetTemperatureC: t.TargetTemperatureC,
		core.FieldFanSpeedSetting:    t.FanSpeedSetting,
	}
}

// ApplianceConfig binds an appliance to a command profile. A list rather
// than a map because config keys are case-folded and appliance IDs are not.
type ApplianceConfig struct {
	ID      string `mapstructure:"id"`
	Profile string `mapstructure:"profile"`
}

// ProfileConfig overrides fields of a base profile. Unset fields keep the
// base value.
type ProfileConfig struct {
	Base                string   `mapstructure:"base"`
	Modes               []string `mapstructure:"modes"`
	FanSpeeds           []string `mapstructure:"fan_speeds"`
	MinTemperatureC     *float64 `mapstructure:"min_temperature_c"`
	MaxTemperatureC     *float64 `mapstructure:"max_temperature_c"`
	TemperatureStepC    *float64 `mapstructure:"temperature_step_c"`
	MaxTimerSeconds     *int     `mapstructure:"max_timer_seconds"`
	TimerStepSeconds    *int     `mapstructure:"timer_step_seconds"`
	SingleFieldCommands *bool    `mapstructure:"single_field_commands"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NotifyConfig contains operator alert settings. Alerts are off without a token.
type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// Enabled reports whether Telegram alerts are configured
func (n NotifyConfig) Enabled() bool {
	return n.TelegramToken != ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Vendor.APIKey == "" {
		return fmt.Errorf("%w: vendor API key is required (ELECTROLUX_API_KEY)", ErrInvalidConfig)
	}

	if c.Vendor.BaseURL == "" {
		return fmt.Errorf("%w: vendor base URL is required", ErrInvalidConfig)
	}

	switch c.Tokens.Store {
	case StoreFile:
		if c.Tokens.FilePath == "" {
			return fmt.Errorf("%w: token file path is required", ErrInvalidConfig)
		}
	case StoreSQLite:
		if c.Tokens.DBPath == "" {
			return fmt.Errorf("%w: token database path is required", ErrInvalidConfig)
		}
		if c.Tokens.WatchFile {
			return fmt.Errorf("%w: watch_file requires the file token store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown token store %q", ErrInvalidConfig, c.Tokens.Store)
	}

	if c.Tokens.SyncEnv && c.Tokens.EnvFile == "" {
		return fmt.Errorf("%w: sync_env requires env_file", ErrInvalidConfig)
	}

	if c.Tokens.RefreshInterval <= 0 || c.Tokens.RefreshBuffer < 0 || c.Tokens.RefreshWait <= 0 {
		return fmt.Errorf("%w: token timings must be positive", ErrInvalidConfig)
	}

	if c.Control.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}

	ct := c.Control.ConfirmTimeouts
	if ct.Mode <= 0 || ct.TargetTemperatureC <= 0 || ct.FanSpeedSetting <= 0 || ct.Default <= 0 {
		return fmt.Errorf("%w: confirm timeouts must be positive", ErrInvalidConfig)
	}

	if c.Notify.Enabled() && c.Notify.TelegramChatID == 0 {
		return fmt.Errorf("%w: telegram_chat_id is required with telegram_token", ErrInvalidConfig)
	}

	for _, a := range c.Control.Appliances {
		if a.ID == "" || a.Profile == "" {
			return fmt.Errorf("%w: appliance bindings need both id and profile", ErrInvalidConfig)
		}
	}

	if _, err := c.Control.BuildProfiles(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// CheckTokenRoutes refuses to expose the credential mutation routes without
// an operator key. Only the HTTP server needs it.
func (s ServerConfig) CheckTokenRoutes() error {
	if s.TokenRoutes && s.OperatorKey == "" {
		return fmt.Errorf("%w: server.operator_key (ACBRIDGE_SERVER_OPERATOR_KEY) is required while token_routes is enabled", ErrInvalidConfig)
	}
	return nil
}

// Load reads configuration from, in increasing priority: defaults, the
// config file at path (optional), the .env file at envFile (optional,
// never overriding the real environment) and environment variables.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := gotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	if envFile != "" {
		v.SetDefault("tokens.env_file", envFile)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names the dashboard deployment has always used
	_ = v.BindEnv("vendor.api_key", EnvPrefix+"_VENDOR_API_KEY", "ELECTROLUX_API_KEY")
	_ = v.BindEnv("vendor.access_token", EnvPrefix+"_VENDOR_ACCESS_TOKEN", "ELECTROLUX_TOKEN")
	_ = v.BindEnv("vendor.refresh_token", EnvPrefix+"_VENDOR_REFRESH_TOKEN", "ELECTROLUX_REFRESH_TOKEN")
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, ErrConfigFileNotFound
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.static_dir", "public")
	v.SetDefault("server.token_rate_limit", 5)
	v.SetDefault("server.token_routes", true)
	v.SetDefault("server.operator_key", "")

	v.SetDefault("vendor.base_url", "https://api.developer.electrolux.one/api/v1")
	v.SetDefault("vendor.api_key", "")
	v.SetDefault("vendor.access_token", "")
	v.SetDefault("vendor.refresh_token", "")
	v.SetDefault("vendor.request_timeout", 10*time.Second)
	v.SetDefault("vendor.requests_per_second", 5)
	v.SetDefault("vendor.burst", 5)

	v.SetDefault("tokens.store", StoreFile)
	v.SetDefault("tokens.file_path", ".tokens.json")
	v.SetDefault("tokens.db_path", "acbridge.db")
	v.SetDefault("tokens.env_file", ".env")
	v.SetDefault("tokens.sync_env", true)
	v.SetDefault("tokens.watch_file", true)
	v.SetDefault("tokens.refresh_interval", 2*time.Hour)
	v.SetDefault("tokens.refresh_buffer", 5*time.Minute)
	v.SetDefault("tokens.refresh_wait", 10*time.Second)
	v.SetDefault("tokens.rate_limit_backoff", 15*time.Minute)

	v.SetDefault("control.poll_interval", time.Second)
	v.SetDefault("control.confirm_timeouts.mode", 20*time.Second)
	v.SetDefault("control.confirm_timeouts.target_temperature_c", 15*time.Second)
	v.SetDefault("control.confirm_timeouts.fan_speed_setting", 5*time.Second)
	v.SetDefault("control.confirm_timeouts.default", 10*time.Second)
	v.SetDefault("control.default_profile", "default")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BuildProfiles turns the configured overrides into command profiles
func (c ControlConfig) BuildProfiles() ([]core.CommandProfile, error) {
	profiles := make([]core.CommandProfile, 0, len(c.Profiles))
	for name, pc := range c.Profiles {
		p, err := pc.build(name)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (pc ProfileConfig) build(name string) (core.CommandProfile, error) {
	base := pc.Base
	if base == "" {
		base = name
	}

	var p core.CommandProfile
	switch base {
	case "default":
		p = core.DefaultProfile()
	case "fine":
		p = core.FineProfile()
	case "legacy":
		p = core.LegacyProfile()
	default:
		return core.CommandProfile{}, fmt.Errorf("profile %s: unknown base profile %q", name, base)
	}
	p.Name = name

	if len(pc.Modes) > 0 {
		p.Modes = make([]core.Mode, 0, len(pc.Modes))
		for _, m := range pc.Modes {
			p.Modes = append(p.Modes, core.ParseMode(m))
		}
	}
	if len(pc.FanSpeeds) > 0 {
		p.FanSpeeds = make([]core.FanSpeed, 0, len(pc.FanSpeeds))
		for _, f := range pc.FanSpeeds {
			p.FanSpeeds = append(p.FanSpeeds, core.ParseFanSpeed(f))
		}
	}
	if pc.MinTemperatureC != nil {
		p.MinTemperatureC = *pc.MinTemperatureC
	}
	if pc.MaxTemperatureC != nil {
		p.MaxTemperatureC = *pc.MaxTemperatureC
	}
	if pc.TemperatureStepC != nil {
		p.TemperatureStepC = *pc.TemperatureStepC
	}
	if pc.MaxTimerSeconds != nil {
		p.MaxTimerSeconds = *pc.MaxTimerSeconds
	}
	if pc.TimerStepSeconds != nil {
		p.TimerStepSeconds = *pc.TimerStepSeconds
	}
	if pc.SingleFieldCommands != nil {
		p.SingleFieldCommands = *pc.SingleFieldCommands
	}

	return p, nil
}
