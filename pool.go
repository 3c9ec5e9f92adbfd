package ca

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrPoolClosed = errors.New("ca: pool closed")

// Pool holds the channels open to one process variable. A channel acquired
// from it is used by one request at a time.
type Pool interface {
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle acquires every idle channel, for the reaper.
	AcquireAllIdle() []Resource

	// Close destroys all channels in the pool.
	Close()

	Stats() PoolStats
}

// Resource is a channel checked out of a Pool.
type Resource interface {
	Value() *Channel

	// Release returns the channel to the pool after use.
	Release()

	// ReleaseUnused returns the channel without refreshing its idle time.
	ReleaseUnused()

	// Destroy closes the channel and removes it from the pool. If the bus
	// refuses to clear it, the channel is leaked instead: it keeps its slot,
	// is counted in PoolStats.LeakedChannels, and the pool fails every later
	// Acquire with the release error.
	Destroy()

	CreationTime() time.Time
	IdleDuration() time.Duration
}

// PoolFactory builds a Pool of at most maxSize channels made by constructor.
type PoolFactory func(constructor func(ctx context.Context) (*Channel, error), maxSize int32) (Pool, error)

// releaseFailure holds the first error a pool got while closing one of its
// channels.
type releaseFailure struct {
	mu  sync.Mutex
	err error
}

func (f *releaseFailure) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *releaseFailure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
