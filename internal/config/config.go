// Package config loads the YAML file that describes a client and the
// simulated process variables it reads from.
//
//	client:
//	  max_channels_per_pv: 2
//	  max_channel_idle_time: 1m
//	  pool: puddle
//	  breaker:
//	    timeout: 5s
//	pvs:
//	  - name: SR-DI-DCCT-01:SIGNAL
//	    type: double
//	    values: [201.5]
//	    units: mA
//	    precision: 2
//
// Load only parses. Validate checks without mutating, and Normalize fills
// in defaults; it must only be called after Validate.
package config

import "time"

type Config struct {
	Client ClientConfig `yaml:"client"`
	PVs    []PVConfig   `yaml:"pvs"`
}

// ---- CLIENT ----

type ClientConfig struct {
	MaxChannelsPerPV   int32         `yaml:"max_channels_per_pv"`
	MaxChannelLifetime time.Duration `yaml:"max_channel_lifetime"`
	MaxChannelIdleTime time.Duration `yaml:"max_channel_idle_time"`
	ReapInterval       time.Duration `yaml:"reap_interval"`

	// Pool selects the channel pool: "puddle" (default) or "channel".
	Pool string `yaml:"pool"`

	// Breaker enables a per-PV circuit breaker when present.
	Breaker *BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxRequests uint32        `yaml:"max_requests"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ---- SIMULATED PVS ----

type PVConfig struct {
	Name string `yaml:"name"`

	// Type is the native element type: string, short, float, enum, char,
	// long or double.
	Type string `yaml:"type"`

	// Values are the initial elements. Enum values may be given by label;
	// a char PV may be given a single string.
	Values  []any `yaml:"values"`
	Offline bool  `yaml:"offline"`

	// Alarm state by name, e.g. status HIHI, severity MAJOR.
	Status   string `yaml:"status"`
	Severity string `yaml:"severity"`

	Units         string       `yaml:"units"`
	Precision     int16        `yaml:"precision"`
	DisplayLimits LimitsConfig `yaml:"display_limits"`
	AlarmLimits   LimitsConfig `yaml:"alarm_limits"`
	WarningLimits LimitsConfig `yaml:"warning_limits"`
	ControlLimits LimitsConfig `yaml:"control_limits"`
	EnumStrings   []string     `yaml:"enum_strings"`
}

// LimitsConfig mirrors dbr.Limits field for field.
type LimitsConfig struct {
	Upper float64 `yaml:"upper"`
	Lower float64 `yaml:"lower"`
}
