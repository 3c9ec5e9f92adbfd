package ca

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Araneidae/epics-ca/cadef"
	"github.com/Araneidae/epics-ca/dbr"
	"github.com/Araneidae/epics-ca/internal/testutils"
	"github.com/Araneidae/epics-ca/sim"
)

func testPVs() []sim.PV {
	return []sim.PV{
		{Name: "X", Values: []float64{3.25}},
		{Name: "WAVE", Values: []int32{1, 2, 3, 4, 5}},
		{Name: "NAME", Values: []string{"beamline"}},
		{
			Name:   "MODE",
			Values: []dbr.EnumValue{1},
			Meta:   dbr.Meta{Ctrl: dbr.Ctrl{EnumStrings: []string{"Manual", "Auto"}}},
		},
		{
			Name:   "TEMP",
			Values: []float64{21.5},
			Meta: dbr.Meta{
				StatusSeverity: dbr.StatusSeverity{Status: 4, Severity: dbr.MinorAlarm},
				Ctrl: dbr.Ctrl{
					Units:     "degC",
					Precision: 1,
					Alarm:     dbr.Limits{Upper: 30, Lower: 0},
				},
			},
		},
		{Name: "OFF", Values: []float64{1}, Offline: true},
	}
}

func newSimClient(t testing.TB, config Config) (*Client, *sim.Bus) {
	t.Helper()
	bus, err := sim.New(testPVs(), nil)
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	config.Bus = bus
	client, err := NewClient(config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, bus
}

func shortContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

func TestNewClientRequiresBus(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	_, err = NewClient(Config{Bus: testutils.NewBusMock(), MaxChannelsPerPV: -1})
	assert.Error(t, err)
}

func TestClientGet(t *testing.T) {
	client, _ := newSimClient(t, Config{})
	ctx := testContext(t)

	v, err := Get[float64](ctx, client, "X")
	require.NoError(t, err)
	assert.Equal(t, 3.25, v)

	t.Run("converted by the server", func(t *testing.T) {
		s, err := Get[string](ctx, client, "X")
		require.NoError(t, err)
		assert.Equal(t, "3.25", s)

		n, err := Get[int32](ctx, client, "X")
		require.NoError(t, err)
		assert.Equal(t, int32(3), n)

		label, err := Get[string](ctx, client, "MODE")
		require.NoError(t, err)
		assert.Equal(t, "Auto", label)
	})
}

func TestClientGetVector(t *testing.T) {
	client, _ := newSimClient(t, Config{})

	vs, err := GetVector[int32](testContext(t), client, "WAVE")
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, vs)

	fs, err := GetVector[float64](testContext(t), client, "WAVE")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, fs)
}

func TestClientGetTimed(t *testing.T) {
	client, bus := newSimClient(t, Config{})

	before := time.Now().Add(-time.Second)
	require.NoError(t, bus.Update("WAVE", []int32{9, 8}))

	got, err := GetTimedVector[int32](testContext(t), client, "WAVE")
	require.NoError(t, err)
	assert.Equal(t, []int32{9, 8}, got.Value)
	assert.True(t, got.Timestamp.After(before))

	temp, err := GetTimed[float64](testContext(t), client, "TEMP")
	require.NoError(t, err)
	assert.Equal(t, 21.5, temp.Value)
	assert.Equal(t, dbr.MinorAlarm, temp.Severity)
	assert.Equal(t, "HIGH", temp.Status.String())
}

func TestClientGetCtrl(t *testing.T) {
	client, _ := newSimClient(t, Config{})

	temp, err := GetCtrl[float64](testContext(t), client, "TEMP")
	require.NoError(t, err)
	assert.Equal(t, 21.5, temp.Value)
	assert.Equal(t, "degC", temp.Ctrl.Units)
	assert.Equal(t, int16(1), temp.Ctrl.Precision)
	assert.Equal(t, dbr.Limits{Upper: 30, Lower: 0}, temp.Ctrl.Alarm)

	mode, err := GetCtrl[dbr.EnumValue](testContext(t), client, "MODE")
	require.NoError(t, err)
	assert.Equal(t, dbr.EnumValue(1), mode.Value)
	assert.Equal(t, []string{"Manual", "Auto"}, mode.Ctrl.EnumStrings)

	wave, err := GetCtrlVector[int32](testContext(t), client, "WAVE")
	require.NoError(t, err)
	assert.Len(t, wave.Value, 5)
}

func TestClientGetUnion(t *testing.T) {
	client, _ := newSimClient(t, Config{})

	u, err := GetUnion(testContext(t), client, "NAME")
	require.NoError(t, err)
	assert.Equal(t, Union{Type: dbr.String, Value: "beamline"}, u)

	uv, err := GetUnionVector(testContext(t), client, "WAVE")
	require.NoError(t, err)
	assert.Equal(t, UnionVector{Type: dbr.Long, Value: []int32{1, 2, 3, 4, 5}}, uv)
}

func TestClientReusesChannels(t *testing.T) {
	client, bus := newSimClient(t, Config{})

	for range 3 {
		_, err := Get[float64](testContext(t), client, "X")
		require.NoError(t, err)
	}

	stats := client.AllPoolStats()
	require.Len(t, stats, 1)
	assert.Equal(t, "X", stats[0].Name)
	assert.Equal(t, uint64(1), stats[0].PoolStats.CreatedChannels)
	assert.Equal(t, 1, bus.ContextCreates())
	assert.Equal(t, uint64(3), client.Stats().Reads)
}

func TestClientOfflinePV(t *testing.T) {
	client, bus := newSimClient(t, Config{})

	_, err := Get[float64](shortContext(t), client, "OFF")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.Errors)
	assert.Equal(t, uint64(1), stats.Canceled)

	require.NoError(t, bus.SetConnected("OFF", true))
	v, err := Get[float64](testContext(t), client, "OFF")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestClientSurvivesDisconnect(t *testing.T) {
	client, bus := newSimClient(t, Config{})

	_, err := Get[float64](testContext(t), client, "X")
	require.NoError(t, err)

	require.NoError(t, bus.SetConnected("X", false))
	_, err = Get[float64](shortContext(t), client, "X")
	assert.True(t, errors.Is(err, ErrDisconnected) || errors.Is(err, context.DeadlineExceeded), "got %v", err)

	require.NoError(t, bus.SetConnected("X", true))
	v, err := Get[float64](testContext(t), client, "X")
	require.NoError(t, err)
	assert.Equal(t, 3.25, v)
}

func TestClientConcurrentGets(t *testing.T) {
	client, _ := newSimClient(t, Config{MaxChannelsPerPV: 3})
	ctx := testContext(t)

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Get[float64](ctx, client, "X")
			if err == nil && v != 3.25 {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	stats := client.AllPoolStats()
	require.Len(t, stats, 1)
	assert.LessOrEqual(t, stats[0].PoolStats.TotalChannels, int32(3))
}

func TestClientChannelPool(t *testing.T) {
	client, _ := newSimClient(t, Config{Pool: NewChannelPool, MaxChannelsPerPV: 2})

	for range 2 {
		v, err := Get[float64](testContext(t), client, "X")
		require.NoError(t, err)
		assert.Equal(t, 3.25, v)
	}

	stats := client.AllPoolStats()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].PoolStats.CreatedChannels)
	assert.Equal(t, int32(1), stats[0].PoolStats.IdleChannels)
}

func TestClientClosed(t *testing.T) {
	client, _ := newSimClient(t, Config{})
	_, err := Get[float64](testContext(t), client, "X")
	require.NoError(t, err)

	client.Close()
	client.Close()

	_, err = Get[float64](testContext(t), client, "X")
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClientReapsIdleChannels(t *testing.T) {
	client, _ := newSimClient(t, Config{
		MaxChannelIdleTime: time.Millisecond,
		ReapInterval:       5 * time.Millisecond,
	})

	_, err := Get[float64](testContext(t), client, "X")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stats := client.AllPoolStats()
		return len(stats) == 1 && stats[0].PoolStats.DestroyedChannels >= 1
	}, time.Second, 5*time.Millisecond)

	v, err := Get[float64](testContext(t), client, "X")
	require.NoError(t, err)
	assert.Equal(t, 3.25, v)
}

func TestClientCircuitBreaker(t *testing.T) {
	client, _ := newSimClient(t, Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute),
	})

	for range 3 {
		_, err := Get[float64](shortContext(t), client, "MISSING")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	_, err := Get[float64](shortContext(t), client, "MISSING")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	stats := client.Stats()
	assert.Equal(t, uint64(4), stats.Reads)
	assert.Equal(t, uint64(3), stats.Canceled)
	assert.Equal(t, uint64(1), stats.BreakerRejections)

	pools := client.AllPoolStats()
	require.Len(t, pools, 1)
	assert.Equal(t, gobreaker.StateOpen, pools[0].CircuitBreakerState)

	// Other process variables are unaffected.
	_, err = Get[float64](testContext(t), client, "X")
	require.NoError(t, err)
}

func TestClientDestroysChannelOnContractViolation(t *testing.T) {
	bus := testutils.NewBusMock()
	client, err := NewClient(Config{Bus: bus})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	go func() {
		for {
			if id, ok := bus.ChannelID("BAD"); ok {
				bus.GetErr = &cadef.StatusError{Op: "array get", Status: cadef.ECABadType}
				bus.Connect(id, int16(dbr.Double), 1)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	_, err = Get[float64](testContext(t), client, "BAD")
	require.ErrorIs(t, err, ErrContractViolation)
	assert.Equal(t, uint64(1), client.Stats().ContractViolations)

	id, ok := bus.ChannelID("BAD")
	require.True(t, ok)
	require.Eventually(t, func() bool { return bus.Cleared(id) }, time.Second, time.Millisecond)
}

func TestClientStopsOpeningChannelsAfterRefusedRelease(t *testing.T) {
	bus := testutils.NewBusMock()
	bus.ClearErr = &cadef.StatusError{Op: "clear channel", Status: cadef.ECABadChID}
	client, err := NewClient(Config{Bus: bus})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	go func() {
		for {
			if id, ok := bus.ChannelID("BAD"); ok {
				bus.GetErr = &cadef.StatusError{Op: "array get", Status: cadef.ECABadType}
				bus.Connect(id, int16(dbr.Double), 1)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	_, err = Get[float64](testContext(t), client, "BAD")
	require.ErrorIs(t, err, ErrContractViolation)
	first, ok := bus.ChannelID("BAD")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		pools := client.AllPoolStats()
		return len(pools) == 1 && pools[0].PoolStats.LeakedChannels == 1
	}, time.Second, time.Millisecond)

	_, err = Get[float64](testContext(t), client, "BAD")
	assert.ErrorIs(t, err, ErrContractViolation)

	last, ok := bus.ChannelID("BAD")
	require.True(t, ok)
	assert.Equal(t, first, last, "no replacement channel opened")
	assert.False(t, bus.Cleared(first))
	assert.Equal(t, uint64(2), client.Stats().ContractViolations)
}

func TestClientsOnOneBusShareDroppedCallbacks(t *testing.T) {
	bus := testutils.NewBusMock()
	first, err := NewClient(Config{Bus: bus})
	require.NoError(t, err)
	t.Cleanup(first.Close)
	second, err := NewClient(Config{Bus: bus})
	require.NoError(t, err)
	t.Cleanup(second.Close)

	ch, err := NewChannel(bus, "GONE", nil)
	require.NoError(t, err)
	id, ok := bus.ChannelID("GONE")
	require.True(t, ok)
	require.NoError(t, ch.Close())

	bus.Connect(id, int16(dbr.Double), 1)

	assert.Equal(t, uint64(1), first.Stats().DroppedCallbacks)
	assert.Equal(t, uint64(1), second.Stats().DroppedCallbacks)
}
