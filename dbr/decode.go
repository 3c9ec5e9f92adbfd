package dbr

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Records are produced by the client library in host byte order.
var order = binary.NativeEndian

// EnumValue is the index of an enumeration state.
type EnumValue uint16

// Element is the set of Go types that the seven basic DBR types decode to.
type Element interface {
	string | EnumValue | uint8 | int16 | int32 | float32 | float64
}

// TypeOf returns the basic DBR type whose elements decode to T.
func TypeOf[T Element]() Type {
	var zero T
	switch any(zero).(type) {
	case string:
		return String
	case EnumValue:
		return Enum
	case uint8:
		return Char
	case int16:
		return Short
	case int32:
		return Long
	case float32:
		return Float
	case float64:
		return Double
	}
	panic("unreachable")
}

// readElement decodes one element from p, which must be at least one element wide.
func readElement[T Element](p []byte) T {
	var v T
	switch ptr := any(&v).(type) {
	case *string:
		*ptr = decodeString(p[:MaxStringSize])
	case *EnumValue:
		*ptr = EnumValue(order.Uint16(p))
	case *uint8:
		*ptr = p[0]
	case *int16:
		*ptr = int16(order.Uint16(p))
	case *int32:
		*ptr = int32(order.Uint32(p))
	case *float32:
		*ptr = math.Float32frombits(order.Uint32(p))
	case *float64:
		*ptr = math.Float64frombits(order.Uint64(p))
	}
	return v
}

func checkRecord[T Element](t Type, rec []byte, count int) error {
	if !t.Valid() {
		return &DecodeError{Type: t, Message: "unsupported type code"}
	}
	if want := TypeOf[T](); t.Basic() != want {
		return &DecodeError{Type: t, Message: fmt.Sprintf("cannot decode into %s elements", want)}
	}
	if count < 0 {
		return &DecodeError{Type: t, Message: fmt.Sprintf("negative element count %d", count)}
	}
	if need := t.Size(count); len(rec) < need {
		return shortRecord(t, len(rec), need)
	}
	return nil
}

// Value decodes the first element of a record of type t.
func Value[T Element](t Type, rec []byte) (T, error) {
	if err := checkRecord[T](t, rec, 1); err != nil {
		var zero T
		return zero, err
	}
	return readElement[T](rec[t.HeaderSize():]), nil
}

// Vector decodes count consecutive elements of a record of type t. String
// slots are decoded independently of each other.
//
// The record carries no length of its own: count must come from the
// connection's element count or the response envelope.
func Vector[T Element](t Type, rec []byte, count int) ([]T, error) {
	if err := checkRecord[T](t, rec, count); err != nil {
		return nil, err
	}
	width := t.Width()
	values := make([]T, count)
	p := rec[t.HeaderSize():]
	for i := range values {
		values[i] = readElement[T](p[i*width:])
	}
	return values, nil
}

// DecodeValue decodes the first element of a record into the Go type that
// matches its basic type: string, EnumValue, uint8, int16, int32, float32 or
// float64.
func DecodeValue(t Type, rec []byte) (any, error) {
	switch t.Basic() {
	case String:
		return Value[string](t, rec)
	case Enum:
		return Value[EnumValue](t, rec)
	case Char:
		return Value[uint8](t, rec)
	case Short:
		return Value[int16](t, rec)
	case Long:
		return Value[int32](t, rec)
	case Float:
		return Value[float32](t, rec)
	case Double:
		return Value[float64](t, rec)
	}
	return nil, &DecodeError{Type: t, Message: "unsupported type code"}
}

// DecodeVector decodes count elements into a slice of the Go type matching
// the record's basic type, returned as any.
func DecodeVector(t Type, rec []byte, count int) (any, error) {
	switch t.Basic() {
	case String:
		return Vector[string](t, rec, count)
	case Enum:
		return Vector[EnumValue](t, rec, count)
	case Char:
		return Vector[uint8](t, rec, count)
	case Short:
		return Vector[int16](t, rec, count)
	case Long:
		return Vector[int32](t, rec, count)
	case Float:
		return Vector[float32](t, rec, count)
	case Double:
		return Vector[float64](t, rec, count)
	}
	return nil, &DecodeError{Type: t, Message: "unsupported type code"}
}
