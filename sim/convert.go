package sim

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Araneidae/epics-ca/dbr"
)

// elementType reports the basic type and length of a typed value slice.
func elementType(values any) (dbr.Type, int, bool) {
	switch v := values.(type) {
	case []string:
		return dbr.String, len(v), true
	case []int16:
		return dbr.Short, len(v), true
	case []float32:
		return dbr.Float, len(v), true
	case []dbr.EnumValue:
		return dbr.Enum, len(v), true
	case []uint8:
		return dbr.Char, len(v), true
	case []int32:
		return dbr.Long, len(v), true
	case []float64:
		return dbr.Double, len(v), true
	}
	return 0, 0, false
}

// convert returns the first n values converted to the basic type to, the
// way a server converts a native field for a request of another type.
// Enum values convert to and from their labels where labels exist.
func convert(values any, n int, to dbr.Type, labels []string) (any, error) {
	from, _, ok := elementType(values)
	if !ok {
		return nil, fmt.Errorf("sim: unsupported value type %T", values)
	}
	if from == to {
		return truncate(values, n), nil
	}

	if to == dbr.String {
		out := make([]string, n)
		for i := range out {
			out[i] = formatElement(values, i, from, labels)
		}
		return out, nil
	}

	fs := make([]float64, n)
	for i := range fs {
		f, err := floatElement(values, i, labels)
		if err != nil {
			return nil, err
		}
		fs[i] = f
	}
	return fromFloats(fs, to), nil
}

func truncate(values any, n int) any {
	switch v := values.(type) {
	case []string:
		return v[:n]
	case []int16:
		return v[:n]
	case []float32:
		return v[:n]
	case []dbr.EnumValue:
		return v[:n]
	case []uint8:
		return v[:n]
	case []int32:
		return v[:n]
	case []float64:
		return v[:n]
	}
	return nil
}

func formatElement(values any, i int, from dbr.Type, labels []string) string {
	if from == dbr.Enum {
		e := int(values.([]dbr.EnumValue)[i])
		if e < len(labels) {
			return labels[e]
		}
		return strconv.Itoa(e)
	}
	f, _ := floatElement(values, i, nil)
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func floatElement(values any, i int, labels []string) (float64, error) {
	switch v := values.(type) {
	case []string:
		for state, label := range labels {
			if label == v[i] {
				return float64(state), nil
			}
		}
		f, err := strconv.ParseFloat(v[i], 64)
		if err != nil {
			return 0, fmt.Errorf("sim: %q is not numeric", v[i])
		}
		return f, nil
	case []int16:
		return float64(v[i]), nil
	case []float32:
		return float64(v[i]), nil
	case []dbr.EnumValue:
		return float64(v[i]), nil
	case []uint8:
		return float64(v[i]), nil
	case []int32:
		return float64(v[i]), nil
	case []float64:
		return v[i], nil
	}
	return 0, fmt.Errorf("sim: unsupported value type %T", values)
}

func fromFloats(fs []float64, to dbr.Type) any {
	switch to {
	case dbr.Short:
		return mapFloats(fs, func(f float64) int16 { return int16(clamp(f, math.MinInt16, math.MaxInt16)) })
	case dbr.Float:
		return mapFloats(fs, func(f float64) float32 { return float32(f) })
	case dbr.Enum:
		return mapFloats(fs, func(f float64) dbr.EnumValue { return dbr.EnumValue(clamp(f, 0, math.MaxUint16)) })
	case dbr.Char:
		return mapFloats(fs, func(f float64) uint8 { return uint8(clamp(f, 0, math.MaxUint8)) })
	case dbr.Long:
		return mapFloats(fs, func(f float64) int32 { return int32(clamp(f, math.MinInt32, math.MaxInt32)) })
	}
	return fs
}

func mapFloats[T any](fs []float64, conv func(float64) T) []T {
	out := make([]T, len(fs))
	for i, f := range fs {
		out[i] = conv(f)
	}
	return out
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, math.Trunc(f)))
}
