package ca

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Araneidae/epics-ca/cadef"
	"github.com/Araneidae/epics-ca/dbr"
	"github.com/Araneidae/epics-ca/internal/testutils"
)

func connectedMockChannel(t *testing.T, native dbr.Type, count uint64) (*Channel, *testutils.BusMock) {
	t.Helper()
	ch, bus, id := newMockChannel(t, nil)
	bus.Connect(id, int16(native), count)
	return ch, bus
}

func encode(t *testing.T, typ dbr.Type, meta dbr.Meta, values any) []byte {
	t.Helper()
	rec, err := dbr.Encode(typ, meta, values)
	require.NoError(t, err)
	return rec
}

// serveOne answers the next request on bus with fn, and hands the request
// back for inspection.
func serveOne(bus *testutils.BusMock, fn func(r testutils.Request)) <-chan testutils.Request {
	seen := make(chan testutils.Request, 1)
	go func() {
		r := <-bus.Requests()
		seen <- r
		fn(r)
	}()
	return seen
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestReadValueDouble(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Double, 1)
	rec := encode(t, dbr.Double, dbr.Meta{}, []float64{3.25})
	seen := serveOne(bus, func(r testutils.Request) { r.Complete(rec, 1) })

	v, err := ReadValue[float64](testContext(t), ch)
	require.NoError(t, err)
	assert.Equal(t, 3.25, v)

	r := <-seen
	assert.Equal(t, int16(dbr.Double), r.Type)
	assert.Equal(t, uint64(1), r.Count)
	assert.Equal(t, 1, bus.Flushes())
	assert.Zero(t, ch.bc.requests.len(), "request token retired")
}

func TestReadVectorUsesNegotiatedCount(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Long, 4)
	want := []int32{1, -2, 3, -4}
	rec := encode(t, dbr.Long, dbr.Meta{}, want)
	seen := serveOne(bus, func(r testutils.Request) { r.Complete(rec, len(want)) })

	vs, err := ReadVector[int32](testContext(t), ch)
	require.NoError(t, err)
	assert.Equal(t, want, vs)
	assert.Zero(t, (<-seen).Count, "vector reads ask for the native count")
}

func TestReadTimed(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Double, 1)
	stamp := time.Date(2025, time.June, 30, 8, 0, 0, 250, time.UTC)
	meta := dbr.Meta{
		StatusSeverity: dbr.StatusSeverity{Status: 3, Severity: dbr.MajorAlarm},
		Timestamp:      dbr.TimestampOf(stamp),
	}
	rec := encode(t, dbr.TimeDouble, meta, []float64{-1.5})
	seen := serveOne(bus, func(r testutils.Request) { r.Complete(rec, 1) })

	got, err := ReadTimed[float64](testContext(t), ch)
	require.NoError(t, err)
	assert.Equal(t, -1.5, got.Value)
	assert.Equal(t, dbr.MajorAlarm, got.Severity)
	assert.Equal(t, dbr.AlarmStatus(3), got.Status)
	assert.True(t, got.Timestamp.Equal(stamp))
	assert.Equal(t, int16(dbr.TimeDouble), (<-seen).Type)
}

func TestReadTimedVector(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Short, 3)
	rec := encode(t, dbr.TimeShort, dbr.Meta{}, []int16{7, 8, 9})
	serveOne(bus, func(r testutils.Request) { r.Complete(rec, 3) })

	got, err := ReadTimedVector[int16](testContext(t), ch)
	require.NoError(t, err)
	assert.Equal(t, []int16{7, 8, 9}, got.Value)
	assert.True(t, got.Timestamp.Equal(time.Unix(dbr.EpochOffset, 0)))
}

func TestReadCtrl(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Double, 1)
	meta := dbr.Meta{Ctrl: dbr.Ctrl{
		Units:     "mm",
		Precision: 2,
		Display:   dbr.Limits{Upper: 10, Lower: -10},
	}}
	rec := encode(t, dbr.CtrlDouble, meta, []float64{0.5})
	seen := serveOne(bus, func(r testutils.Request) { r.Complete(rec, 1) })

	got, err := ReadCtrl[float64](testContext(t), ch)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Value)
	assert.Equal(t, meta.Ctrl, got.Ctrl)
	assert.Equal(t, int16(dbr.CtrlDouble), (<-seen).Type)
}

func TestReadCtrlVectorEnum(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Enum, 2)
	labels := []string{"Off", "On"}
	rec := encode(t, dbr.CtrlEnum, dbr.Meta{Ctrl: dbr.Ctrl{EnumStrings: labels}}, []dbr.EnumValue{1, 0})
	serveOne(bus, func(r testutils.Request) { r.Complete(rec, 2) })

	got, err := ReadCtrlVector[dbr.EnumValue](testContext(t), ch)
	require.NoError(t, err)
	assert.Equal(t, []dbr.EnumValue{1, 0}, got.Value)
	assert.Equal(t, labels, got.Ctrl.EnumStrings)
}

func TestReadWaitsForConnection(t *testing.T) {
	ch, bus, id := newMockChannel(t, nil)
	rec := encode(t, dbr.Char, dbr.Meta{}, []uint8{200})

	ctx := testContext(t)
	done := make(chan error, 1)
	go func() {
		v, err := ReadValue[uint8](ctx, ch)
		if err == nil && v != 200 {
			err = assert.AnError
		}
		done <- err
	}()
	require.Eventually(t, func() bool { return ch.waiterCount() == 1 }, time.Second, time.Millisecond)

	serveOne(bus, func(r testutils.Request) { r.Complete(rec, 1) })
	bus.Connect(id, int16(dbr.Char), 1)
	require.NoError(t, <-done)
}

func TestReadStatusNotNormal(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Double, 1)
	serveOne(bus, func(r testutils.Request) { r.CompleteAs(r.Type, nil, 0, cadef.ECADisconn) })

	_, err := ReadValue[float64](testContext(t), ch)
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, cadef.ECADisconn, readErr.Status)
	assert.Equal(t, "TEST:PV", readErr.Name)
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestReadDecodeFailures(t *testing.T) {
	t.Run("short record", func(t *testing.T) {
		ch, bus := connectedMockChannel(t, dbr.Double, 4)
		serveOne(bus, func(r testutils.Request) { r.Complete(make([]byte, 16), 4) })

		_, err := ReadVector[float64](testContext(t), ch)
		assert.ErrorIs(t, err, dbr.ErrDecode)
	})

	t.Run("wrong type delivered", func(t *testing.T) {
		ch, bus := connectedMockChannel(t, dbr.Double, 1)
		serveOne(bus, func(r testutils.Request) {
			r.CompleteAs(int16(dbr.Long), make([]byte, 4), 1, cadef.ECANormal)
		})

		_, err := ReadValue[float64](testContext(t), ch)
		assert.ErrorIs(t, err, dbr.ErrDecode)
	})
}

func TestReadRejectedByBus(t *testing.T) {
	t.Run("disconnected", func(t *testing.T) {
		ch, bus := connectedMockChannel(t, dbr.Double, 1)
		bus.GetErr = &cadef.StatusError{Op: "array get", Status: cadef.ECADisconn}

		_, err := ReadValue[float64](testContext(t), ch)
		assert.ErrorIs(t, err, ErrDisconnected)
		assert.NotErrorIs(t, err, ErrContractViolation)
		assert.Zero(t, ch.bc.requests.len())
	})

	t.Run("bad type", func(t *testing.T) {
		ch, bus := connectedMockChannel(t, dbr.Double, 1)
		bus.GetErr = &cadef.StatusError{Op: "array get", Status: cadef.ECABadType}

		_, err := ReadValue[float64](testContext(t), ch)
		assert.ErrorIs(t, err, ErrContractViolation)
		assert.Zero(t, ch.bc.requests.len())
	})

	t.Run("flush", func(t *testing.T) {
		ch, bus := connectedMockChannel(t, dbr.Double, 1)
		bus.FlushErr = &cadef.StatusError{Op: "flush io", Status: cadef.ECAAllocMem}

		_, err := ReadValue[float64](testContext(t), ch)
		assert.ErrorIs(t, err, ErrContractViolation)
		assert.Zero(t, ch.bc.requests.len())
	})
}

func TestReadCanceledDropsLateCallback(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Double, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ReadValue[float64](ctx, ch)
		done <- err
	}()

	r := <-bus.Requests()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, ch.bc.requests.len())

	before := ch.bc.dropped.Load()
	r.Complete(encode(t, dbr.Double, dbr.Meta{}, []float64{1}), 1)
	assert.Equal(t, before+1, ch.bc.dropped.Load())
}

func TestReadDuplicateCallbackDropped(t *testing.T) {
	ch, bus := connectedMockChannel(t, dbr.Double, 1)
	rec := encode(t, dbr.Double, dbr.Meta{}, []float64{2})

	before := ch.bc.dropped.Load()
	serveOne(bus, func(r testutils.Request) {
		r.Complete(rec, 1)
		r.Complete(rec, 1)
	})

	v, err := ReadValue[float64](testContext(t), ch)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
	require.Eventually(t, func() bool { return ch.bc.dropped.Load() == before+1 }, time.Second, time.Millisecond)
}

func TestReadOnClosedChannel(t *testing.T) {
	ch, _ := connectedMockChannel(t, dbr.Double, 1)
	require.NoError(t, ch.Close())

	_, err := ReadValue[float64](testContext(t), ch)
	assert.ErrorIs(t, err, ErrClosed)
}
