package ca

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
)

// PoolStats contains statistics about the channel pool of one process
// variable.
//
// Struct is laid out to fit within a single cache line (64 bytes), largest
// fields first.
type PoolStats struct {
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedChannels   uint64 // Total channels created
	DestroyedChannels uint64 // Total channels destroyed
	AcquireErrors     uint64 // Failed acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	TotalChannels  int32 // Channels in the pool (active + idle + leaked)
	IdleChannels   int32 // Idle channels available
	ActiveChannels int32 // Channels currently in use
	LeakedChannels int32 // Channels the bus refused to clear; they still hold a slot
}

// ClientStats contains statistics about client reads.
//
// For Prometheus integration, expose these as counters; Errors is the sum of
// the classified failures plus decode and bus errors.
type ClientStats struct {
	Reads              uint64 // Total Get* calls
	Errors             uint64 // Get* calls that returned an error
	Disconnects        uint64 // Reads that failed because the channel was down
	ContractViolations uint64 // Reads that hit a contract violation
	Canceled           uint64 // Reads abandoned by their context
	BreakerRejections  uint64 // Reads refused by an open circuit breaker
	DroppedCallbacks   uint64 // Callbacks that arrived for a retired token, counted per bus and shared by every Client on it
	_                  uint64 // Padding to align to 64 bytes
}

// poolStatsCollector provides internal methods for updating pool stats.
type poolStatsCollector struct {
	stats *PoolStats
}

func newPoolStatsCollector() *poolStatsCollector {
	return &poolStatsCollector{
		stats: &PoolStats{},
	}
}

func (c *poolStatsCollector) recordAcquire() {
	atomic.AddUint64(&c.stats.AcquireCount, 1)
}

func (c *poolStatsCollector) recordAcquireWait(duration time.Duration) {
	atomic.AddUint64(&c.stats.AcquireWaitCount, 1)
	atomic.AddUint64(&c.stats.AcquireWaitTimeNs, uint64(duration.Nanoseconds()))
}

func (c *poolStatsCollector) recordCreate() {
	atomic.AddUint64(&c.stats.CreatedChannels, 1)
	atomic.AddInt32(&c.stats.TotalChannels, 1)
}

// recordDestroy removes a channel that was either in use or idle.
func (c *poolStatsCollector) recordDestroy(active bool) {
	atomic.AddUint64(&c.stats.DestroyedChannels, 1)
	atomic.AddInt32(&c.stats.TotalChannels, -1)
	if active {
		atomic.AddInt32(&c.stats.ActiveChannels, -1)
	} else {
		atomic.AddInt32(&c.stats.IdleChannels, -1)
	}
}

// recordLeak takes a channel the bus would not clear out of the active or
// idle count. It stays in TotalChannels.
func (c *poolStatsCollector) recordLeak(active bool) {
	atomic.AddInt32(&c.stats.LeakedChannels, 1)
	if active {
		atomic.AddInt32(&c.stats.ActiveChannels, -1)
	} else {
		atomic.AddInt32(&c.stats.IdleChannels, -1)
	}
}

func (c *poolStatsCollector) recordAcquireError() {
	atomic.AddUint64(&c.stats.AcquireErrors, 1)
}

func (c *poolStatsCollector) recordAcquireFromIdle() {
	atomic.AddInt32(&c.stats.IdleChannels, -1)
	atomic.AddInt32(&c.stats.ActiveChannels, 1)
}

func (c *poolStatsCollector) recordActivate() {
	atomic.AddInt32(&c.stats.ActiveChannels, 1)
}

func (c *poolStatsCollector) recordRelease() {
	atomic.AddInt32(&c.stats.IdleChannels, 1)
	atomic.AddInt32(&c.stats.ActiveChannels, -1)
}

func (c *poolStatsCollector) snapshot() PoolStats {
	return PoolStats{
		TotalChannels:     atomic.LoadInt32(&c.stats.TotalChannels),
		IdleChannels:      atomic.LoadInt32(&c.stats.IdleChannels),
		ActiveChannels:    atomic.LoadInt32(&c.stats.ActiveChannels),
		LeakedChannels:    atomic.LoadInt32(&c.stats.LeakedChannels),
		AcquireCount:      atomic.LoadUint64(&c.stats.AcquireCount),
		AcquireWaitCount:  atomic.LoadUint64(&c.stats.AcquireWaitCount),
		CreatedChannels:   atomic.LoadUint64(&c.stats.CreatedChannels),
		DestroyedChannels: atomic.LoadUint64(&c.stats.DestroyedChannels),
		AcquireErrors:     atomic.LoadUint64(&c.stats.AcquireErrors),
		AcquireWaitTimeNs: atomic.LoadUint64(&c.stats.AcquireWaitTimeNs),
	}
}

// clientStatsCollector provides internal methods for updating client stats.
type clientStatsCollector struct {
	stats *ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{
		stats: &ClientStats{},
	}
}

// recordRead counts one Get* call and classifies its error, if any.
func (c *clientStatsCollector) recordRead(err error) {
	atomic.AddUint64(&c.stats.Reads, 1)
	if err == nil {
		return
	}
	atomic.AddUint64(&c.stats.Errors, 1)

	switch {
	case errors.Is(err, ErrDisconnected):
		atomic.AddUint64(&c.stats.Disconnects, 1)
	case errors.Is(err, ErrContractViolation):
		atomic.AddUint64(&c.stats.ContractViolations, 1)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		atomic.AddUint64(&c.stats.Canceled, 1)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		atomic.AddUint64(&c.stats.BreakerRejections, 1)
	}
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Reads:              atomic.LoadUint64(&c.stats.Reads),
		Errors:             atomic.LoadUint64(&c.stats.Errors),
		Disconnects:        atomic.LoadUint64(&c.stats.Disconnects),
		ContractViolations: atomic.LoadUint64(&c.stats.ContractViolations),
		Canceled:           atomic.LoadUint64(&c.stats.Canceled),
		BreakerRejections:  atomic.LoadUint64(&c.stats.BreakerRejections),
	}
}
