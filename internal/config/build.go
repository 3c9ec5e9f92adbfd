package config

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	ca "github.com/Araneidae/epics-ca"
	"github.com/Araneidae/epics-ca/cadef"
	"github.com/Araneidae/epics-ca/dbr"
	"github.com/Araneidae/epics-ca/sim"
)

// Options builds the ca.Config for c, reading through bus.
func (c ClientConfig) Options(bus cadef.Bus, logger *zap.Logger) ca.Config {
	cfg := ca.Config{
		Bus:                bus,
		Logger:             logger,
		MaxChannelsPerPV:   c.MaxChannelsPerPV,
		MaxChannelLifetime: c.MaxChannelLifetime,
		MaxChannelIdleTime: c.MaxChannelIdleTime,
		ReapInterval:       c.ReapInterval,
	}
	if c.Pool == "channel" {
		cfg.Pool = ca.NewChannelPool
	}
	if b := c.Breaker; b != nil {
		cfg.NewCircuitBreaker = ca.NewCircuitBreakerConfig(b.MaxRequests, b.Interval, b.Timeout)
	}
	return cfg
}

// SimPVs converts every declared PV.
func (cfg *Config) SimPVs() ([]sim.PV, error) {
	pvs := make([]sim.PV, 0, len(cfg.PVs))
	for _, p := range cfg.PVs {
		pv, err := p.SimPV()
		if err != nil {
			return nil, err
		}
		pvs = append(pvs, pv)
	}
	return pvs, nil
}

// SimPV converts p to a simulator declaration.
func (p PVConfig) SimPV() (sim.PV, error) {
	t, ok := lookupType(p.Type)
	if !ok {
		return sim.PV{}, fmt.Errorf("config: pv %q: unknown type %q", p.Name, p.Type)
	}
	status, ok := lookupStatus(p.Status)
	if !ok {
		return sim.PV{}, fmt.Errorf("config: pv %q: unknown alarm status %q", p.Name, p.Status)
	}
	severity, ok := lookupSeverity(p.Severity)
	if !ok {
		return sim.PV{}, fmt.Errorf("config: pv %q: unknown alarm severity %q", p.Name, p.Severity)
	}
	if len(p.EnumStrings) > dbr.MaxEnumStates {
		return sim.PV{}, fmt.Errorf("config: pv %q: more than %d enum strings", p.Name, dbr.MaxEnumStates)
	}

	values, err := p.values(t)
	if err != nil {
		return sim.PV{}, fmt.Errorf("config: pv %q: %w", p.Name, err)
	}

	return sim.PV{
		Name:    p.Name,
		Values:  values,
		Offline: p.Offline,
		Meta: dbr.Meta{
			StatusSeverity: dbr.StatusSeverity{Status: status, Severity: severity},
			Ctrl: dbr.Ctrl{
				Units:       p.Units,
				Precision:   p.Precision,
				Display:     dbr.Limits(p.DisplayLimits),
				Alarm:       dbr.Limits(p.AlarmLimits),
				Warning:     dbr.Limits(p.WarningLimits),
				Control:     dbr.Limits(p.ControlLimits),
				EnumStrings: p.EnumStrings,
			},
		},
	}, nil
}

// values builds the typed slice sim.PV expects from the YAML scalars.
func (p PVConfig) values(t dbr.Type) (any, error) {
	if len(p.Values) == 0 {
		return nil, fmt.Errorf("no values")
	}

	switch t {
	case dbr.String:
		out := make([]string, len(p.Values))
		for i, v := range p.Values {
			s := fmt.Sprint(v)
			if len(s) > dbr.MaxStringSize {
				return nil, fmt.Errorf("values[%d]: longer than %d bytes", i, dbr.MaxStringSize)
			}
			out[i] = s
		}
		return out, nil

	case dbr.Char:
		if s, ok := p.Values[0].(string); ok && len(p.Values) == 1 {
			return []uint8(s), nil
		}
		return numbers(p.Values, 0, math.MaxUint8, true, nil, func(f float64) uint8 { return uint8(f) })

	case dbr.Enum:
		return numbers(p.Values, 0, math.MaxUint16, true, p.EnumStrings, func(f float64) dbr.EnumValue { return dbr.EnumValue(f) })

	case dbr.Short:
		return numbers(p.Values, math.MinInt16, math.MaxInt16, true, nil, func(f float64) int16 { return int16(f) })

	case dbr.Long:
		return numbers(p.Values, math.MinInt32, math.MaxInt32, true, nil, func(f float64) int32 { return int32(f) })

	case dbr.Float:
		return numbers(p.Values, -math.MaxFloat32, math.MaxFloat32, false, nil, func(f float64) float32 { return float32(f) })
	}
	return numbers(p.Values, -math.MaxFloat64, math.MaxFloat64, false, nil, func(f float64) float64 { return f })
}

// numbers converts YAML scalars to T, rejecting values outside [lo, hi] and,
// for integer types, fractional values. Strings are accepted only when they
// name one of labels.
func numbers[T any](vs []any, lo, hi float64, integer bool, labels []string, conv func(float64) T) ([]T, error) {
	out := make([]T, len(vs))
	for i, v := range vs {
		var f float64
		switch n := v.(type) {
		case int:
			f = float64(n)
		case int64:
			f = float64(n)
		case uint64:
			f = float64(n)
		case float64:
			f = n
		case string:
			state := -1
			for j, label := range labels {
				if label == n {
					state = j
					break
				}
			}
			if state < 0 {
				return nil, fmt.Errorf("values[%d]: %q is not a number", i, n)
			}
			f = float64(state)
		default:
			return nil, fmt.Errorf("values[%d]: unsupported %T", i, v)
		}
		if f < lo || f > hi {
			return nil, fmt.Errorf("values[%d]: %v out of range", i, v)
		}
		if integer && f != math.Trunc(f) {
			return nil, fmt.Errorf("values[%d]: %v is not an integer", i, v)
		}
		out[i] = conv(f)
	}
	return out, nil
}
