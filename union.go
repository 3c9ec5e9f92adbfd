package ca

import (
	"context"
	"fmt"

	"github.com/Araneidae/epics-ca/cadef"
	"github.com/Araneidae/epics-ca/dbr"
)

// Union is a single value of whichever basic type the channel has natively.
// Value holds a string, dbr.EnumValue, uint8, int16, int32, float32 or
// float64 according to Type.
type Union struct {
	Type  dbr.Type
	Value any
}

// Float64 converts a numeric value; it reports false for strings.
func (u Union) Float64() (float64, bool) {
	switch v := u.Value.(type) {
	case dbr.EnumValue:
		return float64(v), true
	case uint8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func (u Union) String() string {
	return fmt.Sprint(u.Value)
}

// UnionVector is every element of a channel in its native type. Value holds
// a slice of one of the Union element types.
type UnionVector struct {
	Type  dbr.Type
	Value any
}

// Len returns the number of elements.
func (u UnionVector) Len() int {
	switch v := u.Value.(type) {
	case []string:
		return len(v)
	case []dbr.EnumValue:
		return len(v)
	case []uint8:
		return len(v)
	case []int16:
		return len(v)
	case []int32:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	}
	return 0
}

// basicEntry decodes one native basic type into the union. The entry for a
// channel is chosen once, when it connects.
type basicEntry struct {
	typ    dbr.Type
	value  decodeFunc[any]
	vector decodeFunc[any]
}

var basicTable = [...]basicEntry{
	dbr.String: {dbr.String, anyValue[string], anyVector[string]},
	dbr.Short:  {dbr.Short, anyValue[int16], anyVector[int16]},
	dbr.Float:  {dbr.Float, anyValue[float32], anyVector[float32]},
	dbr.Enum:   {dbr.Enum, anyValue[dbr.EnumValue], anyVector[dbr.EnumValue]},
	dbr.Char:   {dbr.Char, anyValue[uint8], anyVector[uint8]},
	dbr.Long:   {dbr.Long, anyValue[int32], anyVector[int32]},
	dbr.Double: {dbr.Double, anyValue[float64], anyVector[float64]},
}

// lookupBasic returns the entry for a native field type, or false for codes
// that are not one of the seven basic types.
func lookupBasic(ft int16) (*basicEntry, bool) {
	if ft < 0 || int(ft) >= len(basicTable) {
		return nil, false
	}
	return &basicTable[ft], true
}

func anyValue[T dbr.Element](t dbr.Type, rec []byte, _ int) (any, error) {
	v, err := dbr.Value[T](t, rec)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func anyVector[T dbr.Element](t dbr.Type, rec []byte, count int) (any, error) {
	v, err := dbr.Vector[T](t, rec, count)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ReadUnion reads one element in the channel's native type.
func ReadUnion(ctx context.Context, ch *Channel) (Union, error) {
	id, entry, err := waitEntry(ctx, ch)
	if err != nil {
		return Union{}, err
	}
	v, err := issue(ctx, ch, id, entry.typ, 1, entry.value)
	if err != nil {
		return Union{}, err
	}
	return Union{Type: entry.typ, Value: v}, nil
}

// ReadUnionVector reads every element in the channel's native type.
func ReadUnionVector(ctx context.Context, ch *Channel) (UnionVector, error) {
	id, entry, err := waitEntry(ctx, ch)
	if err != nil {
		return UnionVector{}, err
	}
	v, err := issue(ctx, ch, id, entry.typ, 0, entry.vector)
	if err != nil {
		return UnionVector{}, err
	}
	return UnionVector{Type: entry.typ, Value: v}, nil
}

// waitEntry waits for ch to connect and returns its handle and the table
// entry cached for its native type.
func waitEntry(ctx context.Context, ch *Channel) (cadef.ChanID, *basicEntry, error) {
	if _, err := ch.WaitConnect(ctx); err != nil {
		return 0, nil, err
	}
	return ch.connected()
}
