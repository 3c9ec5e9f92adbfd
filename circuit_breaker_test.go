package ca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCircuitBreakerConfig(t *testing.T) {
	newBreaker := NewCircuitBreakerConfig(1, time.Minute, time.Minute)
	cb := newBreaker("TEST:PV")
	require.NotNil(t, cb)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerTripsOnFailureRatio(t *testing.T) {
	cb := NewCircuitBreakerConfig(1, time.Minute, time.Minute)("TEST:PV")
	failure := errors.New("read failed")

	for range 2 {
		ok, err := cb.Execute(func() (bool, error) { return true, nil })
		require.NoError(t, err)
		assert.True(t, ok)
	}

	for range 2 {
		_, err := cb.Execute(func() (bool, error) { return false, failure })
		require.ErrorIs(t, err, failure)
	}
	// 2 of 4 failed: below the ratio.
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	_, err := cb.Execute(func() (bool, error) { return false, failure })
	require.ErrorIs(t, err, failure)
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	called := false
	_, err = cb.Execute(func() (bool, error) { called = true; return true, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called)
}

func TestCircuitBreakerIgnoresCallerCancellation(t *testing.T) {
	cb := NewCircuitBreakerConfig(1, time.Minute, time.Minute)("TEST:PV")

	for range 5 {
		_, err := cb.Execute(func() (bool, error) { return false, context.Canceled })
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreakerConfig(1, time.Minute, 20*time.Millisecond)("TEST:PV")
	for range 3 {
		_, _ = cb.Execute(func() (bool, error) { return false, ErrDisconnected })
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	require.Eventually(t, func() bool { return cb.State() == gobreaker.StateHalfOpen }, time.Second, 5*time.Millisecond)

	_, err := cb.Execute(func() (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
