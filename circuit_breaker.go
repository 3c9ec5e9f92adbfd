package ca

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker guards the reads of one process variable.
// *gobreaker.CircuitBreaker[bool] satisfies it.
type CircuitBreaker interface {
	Execute(req func() (bool, error)) (bool, error)
	State() gobreaker.State
}

// NewCircuitBreakerConfig returns a function that creates circuit breakers for
// process variables. This is a helper for common use cases.
//
// A read abandoned by its own context does not count as a failure.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(pv string) CircuitBreaker {
	return func(pv string) CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        pv,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}
		return gobreaker.NewCircuitBreaker[bool](settings)
	}
}
