package ca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Araneidae/epics-ca/dbr"
	"github.com/Araneidae/epics-ca/internal/testutils"
)

func TestReadUnionEveryBasicType(t *testing.T) {
	tests := []struct {
		native dbr.Type
		values any
		want   any
	}{
		{dbr.String, []string{"idle"}, "idle"},
		{dbr.Short, []int16{-3}, int16(-3)},
		{dbr.Float, []float32{0.5}, float32(0.5)},
		{dbr.Enum, []dbr.EnumValue{2}, dbr.EnumValue(2)},
		{dbr.Char, []uint8{255}, uint8(255)},
		{dbr.Long, []int32{-70000}, int32(-70000)},
		{dbr.Double, []float64{3.25}, 3.25},
	}

	for _, tt := range tests {
		t.Run(tt.native.String(), func(t *testing.T) {
			ch, bus := connectedMockChannel(t, tt.native, 1)
			rec := encode(t, tt.native, dbr.Meta{}, tt.values)
			seen := serveOne(bus, func(r testutils.Request) { r.Complete(rec, 1) })

			u, err := ReadUnion(testContext(t), ch)
			require.NoError(t, err)
			assert.Equal(t, Union{Type: tt.native, Value: tt.want}, u)

			r := <-seen
			assert.Equal(t, int16(tt.native), r.Type, "requested in the native type")
			assert.Equal(t, uint64(1), r.Count)
		})
	}
}

func TestReadUnionVector(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Long, 3)
	rec := encode(t, dbr.Long, dbr.Meta{}, []int32{1, 2, 3})
	seen := serveOne(bus, func(r testutils.Request) { r.Complete(rec, 3) })

	u, err := ReadUnionVector(testContext(t), ch)
	require.NoError(t, err)
	assert.Equal(t, dbr.Long, u.Type)
	assert.Equal(t, []int32{1, 2, 3}, u.Value)
	assert.Equal(t, 3, u.Len())
	assert.Zero(t, (<-seen).Count)
}

func TestUnionEntryFollowsReconnect(t *testing.T) {
	ch, bus, id := newMockChannel(t, nil)
	bus.Connect(id, int16(dbr.Double), 1)
	bus.Disconnect(id)
	bus.Connect(id, int16(dbr.String), 1)

	rec := encode(t, dbr.String, dbr.Meta{}, []string{"now a string"})
	serveOne(bus, func(r testutils.Request) { r.Complete(rec, 1) })

	u, err := ReadUnion(testContext(t), ch)
	require.NoError(t, err)
	assert.Equal(t, Union{Type: dbr.String, Value: "now a string"}, u)
}

func TestLookupBasic(t *testing.T) {
	for ft := int16(0); ft <= 6; ft++ {
		e, ok := lookupBasic(ft)
		require.True(t, ok)
		assert.Equal(t, dbr.Type(ft), e.typ)
	}
	for _, ft := range []int16{-1, 7, 20, 34} {
		_, ok := lookupBasic(ft)
		assert.False(t, ok, "type %d", ft)
	}
}

func TestUnionConversions(t *testing.T) {
	f, ok := Union{Type: dbr.Long, Value: int32(-4)}.Float64()
	assert.True(t, ok)
	assert.Equal(t, -4.0, f)

	f, ok = Union{Type: dbr.Enum, Value: dbr.EnumValue(3)}.Float64()
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	_, ok = Union{Type: dbr.String, Value: "x"}.Float64()
	assert.False(t, ok)

	assert.Equal(t, "3.25", Union{Type: dbr.Double, Value: 3.25}.String())
	assert.Equal(t, "abc", Union{Type: dbr.String, Value: "abc"}.String())
}
