// Package coarsetime is a cheap, coarse clock for pool bookkeeping. It is
// refreshed every 50ms by a background goroutine, so readings may lag the
// wall clock by up to one tick.
package coarsetime

import (
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

var now atomic.Int64

func init() {
	now.Store(time.Now().UnixNano())

	tick := time.NewTicker(tick)
	go func() {
		for t := range tick.C {
			now.Store(t.UnixNano())
		}
	}()
}

// Now returns the last sampled time.
func Now() time.Time {
	return time.Unix(0, now.Load())
}

// Since is Now().Sub(t).
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
