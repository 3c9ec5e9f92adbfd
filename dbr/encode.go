package dbr

import (
	"fmt"
	"math"
)

// Meta is the metadata written into a record header by Encode. Fields not
// carried by the requested family are ignored.
type Meta struct {
	StatusSeverity
	Timestamp Timestamp
	Ctrl      Ctrl
}

// Encode builds a record of type t holding values, which must be a slice of
// the Go element type matching t's basic type (for example []float64 for
// DOUBLE). The layout is byte for byte what the client library delivers to
// an event callback, which makes Encode the building block for simulated
// buses and test fixtures.
func Encode(t Type, m Meta, values any) ([]byte, error) {
	if !t.Valid() {
		return nil, &DecodeError{Type: t, Message: "unsupported type code"}
	}
	switch v := values.(type) {
	case []string:
		return encode(t, m, v)
	case []EnumValue:
		return encode(t, m, v)
	case []uint8:
		return encode(t, m, v)
	case []int16:
		return encode(t, m, v)
	case []int32:
		return encode(t, m, v)
	case []float32:
		return encode(t, m, v)
	case []float64:
		return encode(t, m, v)
	}
	return nil, &DecodeError{Type: t, Message: fmt.Sprintf("cannot encode %T", values)}
}

func encode[T Element](t Type, m Meta, values []T) ([]byte, error) {
	if want := TypeOf[T](); t.Basic() != want {
		return nil, &DecodeError{Type: t, Message: fmt.Sprintf("cannot encode %T as %s", values, want)}
	}
	rec := make([]byte, t.Size(len(values)))
	writeHeader(t, m, rec)

	width := t.Width()
	p := rec[t.HeaderSize():]
	for i, v := range values {
		writeElement(p[i*width:(i+1)*width], v)
	}
	return rec, nil
}

func writeElement[T Element](p []byte, v T) {
	switch x := any(v).(type) {
	case string:
		encodeString(p, x)
	case EnumValue:
		order.PutUint16(p, uint16(x))
	case uint8:
		p[0] = x
	case int16:
		order.PutUint16(p, uint16(x))
	case int32:
		order.PutUint32(p, uint32(x))
	case float32:
		order.PutUint32(p, math.Float32bits(x))
	case float64:
		order.PutUint64(p, math.Float64bits(x))
	}
}

func writeHeader(t Type, m Meta, rec []byte) {
	family := t.Family()
	if family == FamilyPlain {
		return
	}
	order.PutUint16(rec[0:], uint16(m.Status))
	order.PutUint16(rec[2:], uint16(m.Severity))

	switch family {
	case FamilyTime:
		order.PutUint32(rec[4:], m.Timestamp.Secs)
		order.PutUint32(rec[8:], m.Timestamp.Nsec)
	case FamilyCtrl:
		writeCtrl(t.Basic(), m.Ctrl, rec)
	}
}

func writeCtrl(basic Type, ctrl Ctrl, rec []byte) {
	switch basic {
	case String:
		return
	case Enum:
		n := min(len(ctrl.EnumStrings), MaxEnumStates)
		order.PutUint16(rec[4:], uint16(n))
		for i, s := range ctrl.EnumStrings[:n] {
			off := 6 + i*MaxEnumStringSize
			encodeString(rec[off:off+MaxEnumStringSize], s)
		}
		return
	}

	unitsAt, limitsAt := 4, 12
	if basic == Float || basic == Double {
		order.PutUint16(rec[4:], uint16(ctrl.Precision))
		unitsAt, limitsAt = 8, 16
	}
	encodeString(rec[unitsAt:unitsAt+MaxUnitsSize], ctrl.Units)

	limits := [8]float64{
		ctrl.Display.Upper, ctrl.Display.Lower,
		ctrl.Alarm.Upper, ctrl.Warning.Upper,
		ctrl.Warning.Lower, ctrl.Alarm.Lower,
		ctrl.Control.Upper, ctrl.Control.Lower,
	}
	p := rec[limitsAt:]
	for i, l := range limits {
		switch basic {
		case Short:
			order.PutUint16(p[2*i:], uint16(int16(l)))
		case Float:
			order.PutUint32(p[4*i:], math.Float32bits(float32(l)))
		case Char:
			p[i] = uint8(l)
		case Long:
			order.PutUint32(p[4*i:], uint32(int32(l)))
		case Double:
			order.PutUint64(p[8*i:], math.Float64bits(l))
		}
	}
}
