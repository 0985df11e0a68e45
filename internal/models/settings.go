package models

import (
	"strings"
	"time"
)

// Service scopes.
const (
	ScopeSystem = "system"
	ScopeUser   = "user"
)

// Service backends.
const (
	BackendSystemctl = "systemctl"
	BackendDBus      = "dbus"
)

// Poll timing bounds. The probe timeout is clamped to the tick interval so
// a hung status query resolves to Unknown before the next tick fires.
const (
	MinIntervalMS           = 250
	DefaultIntervalMS       = 5000
	DefaultProbeTimeoutMS   = 4000
	DefaultControlTimeoutMS = 120000
	DefaultConfirmDelayMS   = 1000
)

// ServiceConfig identifies the target unit and how to reach it.
type ServiceConfig struct {
	Unit    string `yaml:"unit"`    // systemd unit name, ".service" suffix optional
	Scope   string `yaml:"scope"`   // "system" | "user"
	Backend string `yaml:"backend"` // "systemctl" | "dbus"
	Elevate string `yaml:"elevate"` // elevation command for system-scope control
}

// PollConfig holds the reconciler cadence and timeouts.
type PollConfig struct {
	IntervalMS       int `yaml:"interval_ms"`
	ProbeTimeoutMS   int `yaml:"probe_timeout_ms"`
	ControlTimeoutMS int `yaml:"control_timeout_ms"`
	ConfirmDelayMS   int `yaml:"confirm_delay_ms"`
}

// Interval returns the tick interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

// ProbeTimeout returns the per-probe deadline as a duration.
func (p PollConfig) ProbeTimeout() time.Duration {
	return time.Duration(p.ProbeTimeoutMS) * time.Millisecond
}

// ControlTimeout returns the per-control deadline as a duration. It is
// deliberately long: the user may be typing a password into the
// authentication dialog.
func (p PollConfig) ControlTimeout() time.Duration {
	return time.Duration(p.ControlTimeoutMS) * time.Millisecond
}

// ConfirmDelay returns how long after an acknowledged control request the
// confirmation probe fires.
func (p PollConfig) ConfirmDelay() time.Duration {
	return time.Duration(p.ConfirmDelayMS) * time.Millisecond
}

// NotifyConfig holds desktop notification toggles.
type NotifyConfig struct {
	OnStateChange  bool `yaml:"on_state_change"`
	OnControlError bool `yaml:"on_control_error"`
}

// ModelsConfig holds model listing settings for the tray submenu.
type ModelsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"` // ollama binary; empty means lookup in PATH
}

// LoggingConfig holds log level and rotation settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty means logs/ollamatray.log under the config dir
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Console    bool   `yaml:"console"`
}

// Settings represents global application settings.
// This corresponds to ~/.config/ollamatray/settings.yaml.
type Settings struct {
	Version       int           `yaml:"version"`
	Service       ServiceConfig `yaml:"service"`
	Poll          PollConfig    `yaml:"poll"`
	Notifications NotifyConfig  `yaml:"notifications"`
	Models        ModelsConfig  `yaml:"models"`
	Logging       LoggingConfig `yaml:"logging"`
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version: 1,
		Service: ServiceConfig{
			Unit:    "ollama",
			Scope:   ScopeSystem,
			Backend: BackendSystemctl,
			Elevate: "pkexec",
		},
		Poll: PollConfig{
			IntervalMS:       DefaultIntervalMS,
			ProbeTimeoutMS:   DefaultProbeTimeoutMS,
			ControlTimeoutMS: DefaultControlTimeoutMS,
			ConfirmDelayMS:   DefaultConfirmDelayMS,
		},
		Notifications: NotifyConfig{
			OnStateChange:  false,
			OnControlError: true,
		},
		Models: ModelsConfig{
			Enabled: true,
			Command: "", // Empty means lookup in PATH
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
			Console:    false,
		},
	}
}

// Normalize clamps values that would break the poll loop and fills in
// defaults for fields older settings files leave empty.
func (s *Settings) Normalize() {
	if s.Service.Unit == "" {
		s.Service.Unit = "ollama"
	}
	if s.Service.Scope != ScopeUser {
		s.Service.Scope = ScopeSystem
	}
	if s.Service.Backend != BackendDBus {
		s.Service.Backend = BackendSystemctl
	}
	if s.Service.Elevate == "" && s.Service.Scope == ScopeSystem {
		s.Service.Elevate = "pkexec"
	}

	if s.Poll.IntervalMS < MinIntervalMS {
		s.Poll.IntervalMS = DefaultIntervalMS
	}
	if s.Poll.ProbeTimeoutMS <= 0 || s.Poll.ProbeTimeoutMS > s.Poll.IntervalMS {
		s.Poll.ProbeTimeoutMS = s.Poll.IntervalMS
	}
	if s.Poll.ControlTimeoutMS <= 0 {
		s.Poll.ControlTimeoutMS = DefaultControlTimeoutMS
	}
	if s.Poll.ConfirmDelayMS <= 0 {
		s.Poll.ConfirmDelayMS = DefaultConfirmDelayMS
	}

	if strings.TrimSpace(s.Logging.Level) == "" {
		s.Logging.Level = "info"
	}
	if s.Logging.MaxSizeMB <= 0 {
		s.Logging.MaxSizeMB = 10
	}
}
