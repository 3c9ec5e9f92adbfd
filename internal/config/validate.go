package config

import (
	"fmt"
	"strings"

	"github.com/Araneidae/epics-ca/dbr"
)

var typeNames = map[string]dbr.Type{
	"string": dbr.String,
	"short":  dbr.Short,
	"float":  dbr.Float,
	"enum":   dbr.Enum,
	"char":   dbr.Char,
	"long":   dbr.Long,
	"double": dbr.Double,
}

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if err := validateClient(cfg.Client); err != nil {
		return err
	}

	seen := make(map[string]bool, len(cfg.PVs))
	for i, pv := range cfg.PVs {
		if pv.Name == "" {
			return fmt.Errorf("config: pvs[%d]: name is required", i)
		}
		if len(pv.Name) > dbr.MaxStringSize {
			return fmt.Errorf("config: pv %q: name longer than %d bytes", pv.Name, dbr.MaxStringSize)
		}
		if seen[pv.Name] {
			return fmt.Errorf("config: pv %q declared twice", pv.Name)
		}
		seen[pv.Name] = true

		if _, err := pv.SimPV(); err != nil {
			return err
		}
	}
	return nil
}

func validateClient(c ClientConfig) error {
	if c.MaxChannelsPerPV < 0 {
		return fmt.Errorf("config: client: max_channels_per_pv must not be negative")
	}
	for name, d := range map[string]int64{
		"max_channel_lifetime":  int64(c.MaxChannelLifetime),
		"max_channel_idle_time": int64(c.MaxChannelIdleTime),
		"reap_interval":         int64(c.ReapInterval),
	} {
		if d < 0 {
			return fmt.Errorf("config: client: %s must not be negative", name)
		}
	}
	switch strings.ToLower(c.Pool) {
	case "", "puddle", "channel":
	default:
		return fmt.Errorf("config: client: unknown pool %q", c.Pool)
	}
	if b := c.Breaker; b != nil && (b.Interval < 0 || b.Timeout < 0) {
		return fmt.Errorf("config: client: breaker durations must not be negative")
	}
	return nil
}

func lookupType(name string) (dbr.Type, bool) {
	t, ok := typeNames[strings.ToLower(name)]
	return t, ok
}

func lookupStatus(name string) (dbr.AlarmStatus, bool) {
	if name == "" {
		return 0, true
	}
	for s := dbr.AlarmStatus(0); s < 32; s++ {
		if strings.EqualFold(s.String(), name) {
			return s, true
		}
	}
	return 0, false
}

func lookupSeverity(name string) (dbr.AlarmSeverity, bool) {
	if name == "" {
		return dbr.NoAlarm, true
	}
	for s := dbr.NoAlarm; s <= dbr.InvalidAlarm; s++ {
		if strings.EqualFold(s.String(), name) {
			return s, true
		}
	}
	return 0, false
}
