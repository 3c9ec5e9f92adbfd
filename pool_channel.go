package ca

import (
	"context"
	"sync"
	"time"

	"github.com/Araneidae/epics-ca/internal/coarsetime"
)

// NewChannelPool creates a pool backed by a Go channel of idle resources.
// It avoids puddle's background goroutines and suits pools of one or two
// channels.
func NewChannelPool(constructor func(ctx context.Context) (*Channel, error), maxSize int32) (Pool, error) {
	return &channelPool{
		constructor: constructor,
		maxSize:     maxSize,
		resources:   make(chan *channelResource, maxSize),
		stats:       newPoolStatsCollector(),
	}, nil
}

type channelResource struct {
	ch           *Channel
	pool         *channelPool
	creationTime time.Time
	lastUsedTime time.Time
}

func (r *channelResource) Value() *Channel {
	return r.ch
}

func (r *channelResource) Release() {
	r.lastUsedTime = coarsetime.Now()
	r.pool.put(r)
}

func (r *channelResource) ReleaseUnused() {
	// Reaper passes keep their idle time.
	r.pool.put(r)
}

func (r *channelResource) Destroy() {
	if r.pool.closeChannel(r.ch, true) {
		r.pool.mu.Lock()
		r.pool.size--
		r.pool.mu.Unlock()
	}
}

func (r *channelResource) CreationTime() time.Time {
	return r.creationTime
}

func (r *channelResource) IdleDuration() time.Duration {
	return coarsetime.Since(r.lastUsedTime)
}

type channelPool struct {
	constructor func(ctx context.Context) (*Channel, error)
	maxSize     int32

	mu        sync.Mutex
	resources chan *channelResource
	size      int32
	closed    bool

	stats  *poolStatsCollector
	failed releaseFailure
}

func (p *channelPool) Acquire(ctx context.Context) (Resource, error) {
	p.stats.recordAcquire()

	if err := p.failed.get(); err != nil {
		p.stats.recordAcquireError()
		return nil, err
	}

	select {
	case res, ok := <-p.resources:
		if ok {
			p.stats.recordAcquireFromIdle()
			return res, nil
		}
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.stats.recordAcquireError()
		return nil, ErrPoolClosed
	}

	if p.size < p.maxSize {
		p.size++
		p.mu.Unlock()

		ch, err := p.constructor(ctx)
		if err != nil {
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			p.stats.recordAcquireError()
			return nil, err
		}

		p.stats.recordCreate()
		p.stats.recordActivate()

		now := coarsetime.Now()
		return &channelResource{
			ch:           ch,
			pool:         p,
			creationTime: now,
			lastUsedTime: now,
		}, nil
	}
	p.mu.Unlock()

	// Full: wait for a release.
	waitStart := coarsetime.Now()
	select {
	case res, ok := <-p.resources:
		if !ok {
			p.stats.recordAcquireError()
			return nil, ErrPoolClosed
		}
		p.stats.recordAcquireWait(coarsetime.Since(waitStart))
		p.stats.recordAcquireFromIdle()
		return res, nil
	case <-ctx.Done():
		p.stats.recordAcquireError()
		return nil, ctx.Err()
	}
}

func (p *channelPool) put(res *channelResource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		if p.closeChannel(res.ch, true) {
			p.size--
		}
		return
	}

	select {
	case p.resources <- res:
		p.stats.recordRelease()
	default:
		if p.closeChannel(res.ch, true) {
			p.size--
		}
	}
}

// closeChannel closes ch and reports whether the bus released it. A channel
// the bus refused is leaked: it keeps its slot and fails the pool.
func (p *channelPool) closeChannel(ch *Channel, active bool) bool {
	if err := ch.Close(); err != nil {
		p.failed.set(err)
		p.stats.recordLeak(active)
		return false
	}
	p.stats.recordDestroy(active)
	return true
}

func (p *channelPool) AcquireAllIdle() []Resource {
	var idle []Resource
	for {
		select {
		case res, ok := <-p.resources:
			if !ok {
				return idle
			}
			p.stats.recordAcquireFromIdle()
			idle = append(idle, res)
		default:
			return idle
		}
	}
}

// Close destroys idle channels; channels still in use are destroyed when
// they are released.
func (p *channelPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.resources)
	p.mu.Unlock()

	for res := range p.resources {
		if p.closeChannel(res.ch, false) {
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
		}
	}
}

func (p *channelPool) Stats() PoolStats {
	return p.stats.snapshot()
}
