package ca

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// NewPuddlePool creates a puddle-based channel pool.
// This is the default pool implementation.
func NewPuddlePool(constructor func(ctx context.Context) (*Channel, error), maxSize int32) (Pool, error) {
	p := &puddlePool{}

	poolConfig := &puddle.Config[*Channel]{
		Constructor: func(ctx context.Context) (*Channel, error) {
			ch, err := constructor(ctx)
			if err == nil {
				p.created.Add(1)
			}
			return ch, err
		},
		Destructor: func(ch *Channel) {
			// puddle frees the slot regardless, so a refused release is
			// tracked here and fails the pool.
			if err := ch.Close(); err != nil {
				p.failed.set(err)
				p.leaked.Add(1)
				return
			}
			p.destroyed.Add(1)
		},
		MaxSize: maxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// puddlePool wraps puddle.Pool to implement our Pool interface.
type puddlePool struct {
	pool      *puddle.Pool[*Channel]
	created   atomic.Int64
	destroyed atomic.Int64
	leaked    atomic.Int32
	failed    releaseFailure
}

func (p *puddlePool) Acquire(ctx context.Context) (Resource, error) {
	if err := p.failed.get(); err != nil {
		return nil, err
	}
	res, err := p.pool.Acquire(ctx)
	if errors.Is(err, puddle.ErrClosedPool) {
		return nil, ErrPoolClosed
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *puddlePool) AcquireAllIdle() []Resource {
	idle := p.pool.AcquireAllIdle()
	resources := make([]Resource, len(idle))
	for i, res := range idle {
		resources[i] = res
	}
	return resources
}

func (p *puddlePool) Close() {
	p.pool.Close()
}

// Stats maps puddle's counters onto PoolStats.
func (p *puddlePool) Stats() PoolStats {
	s := p.pool.Stat()
	leaked := p.leaked.Load()
	return PoolStats{
		TotalChannels:     s.TotalResources() + leaked,
		LeakedChannels:    leaked,
		IdleChannels:      s.IdleResources(),
		ActiveChannels:    s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
		CreatedChannels:   uint64(p.created.Load()),
		DestroyedChannels: uint64(p.destroyed.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
	}
}
