package ca

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/Araneidae/epics-ca/cadef"
	"github.com/Araneidae/epics-ca/internal"
)

// Config holds configuration for a Client.
type Config struct {
	// Bus is the Channel Access runtime to read through. Required.
	Bus cadef.Bus

	// Logger receives structured logs. If nil, logging is disabled.
	Logger *zap.Logger

	// MaxChannelsPerPV is the maximum number of channels opened to one
	// process variable, which bounds the concurrent reads of it.
	// Zero means 1.
	MaxChannelsPerPV int32

	// MaxChannelLifetime is the maximum duration a channel is reused.
	// Zero means no limit.
	MaxChannelLifetime time.Duration

	// MaxChannelIdleTime is the maximum duration a channel can stay idle
	// before being closed. Zero means no limit.
	MaxChannelIdleTime time.Duration

	// ReapInterval is how often idle channels are checked against the two
	// limits above. Zero disables reaping.
	ReapInterval time.Duration

	// Pool is the channel pool factory.
	// If nil, uses NewPuddlePool.
	Pool PoolFactory

	// NewCircuitBreaker creates a circuit breaker for a process variable.
	// Called once per name when its pool is created.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(pv string) CircuitBreaker
}

// poolShards is the number of independently locked pool maps.
const poolShards = 16

// pvPool wraps a pool with the process variable it serves.
type pvPool struct {
	name           string
	pool           Pool
	circuitBreaker CircuitBreaker // nil if not configured
}

type poolShard struct {
	mu    sync.RWMutex
	pools map[string]*pvPool
}

// Client reads process variables by name through pools of channels. Pools
// are created on first use and kept until Close.
type Client struct {
	bus    cadef.Bus
	logger *zap.Logger
	config Config

	shards [poolShards]poolShard
	closed atomic.Bool

	stopReaper chan struct{}
	reaperDone sync.WaitGroup

	stats *clientStatsCollector
}

// NewClient creates a Client. No channel is opened until the first read.
func NewClient(config Config) (*Client, error) {
	if config.Bus == nil {
		return nil, errors.New("ca: no bus provided")
	}
	if config.MaxChannelsPerPV < 0 {
		return nil, fmt.Errorf("ca: invalid MaxChannelsPerPV %d", config.MaxChannelsPerPV)
	}
	if config.MaxChannelsPerPV == 0 {
		config.MaxChannelsPerPV = 1
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Pool == nil {
		config.Pool = NewPuddlePool
	}

	c := &Client{
		bus:        config.Bus,
		logger:     config.Logger,
		config:     config,
		stopReaper: make(chan struct{}),
		stats:      newClientStatsCollector(),
	}
	for i := range c.shards {
		c.shards[i].pools = make(map[string]*pvPool)
	}

	if config.ReapInterval > 0 {
		c.reaperDone.Add(1)
		go c.reapLoop()
	}

	return c, nil
}

// Close stops the reaper and closes every pool. Reads still in progress
// must finish before their channels can be closed.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopReaper)
	c.reaperDone.Wait()

	for i := range c.shards {
		shard := &c.shards[i]
		shard.mu.Lock()
		for name, pp := range shard.pools {
			pp.pool.Close()
			delete(shard.pools, name)
		}
		shard.mu.Unlock()
	}
	c.logger.Debug("ca: client closed")
}

// shardFor picks the shard holding the pool for name.
func (c *Client) shardFor(name string) *poolShard {
	return &c.shards[internal.ShardOf(name, poolShards)]
}

// getOrCreatePool gets or creates the pool for the named process variable.
func (c *Client) getOrCreatePool(name string) (*pvPool, error) {
	shard := c.shardFor(name)

	shard.mu.RLock()
	pp, exists := shard.pools[name]
	shard.mu.RUnlock()
	if exists {
		return pp, nil
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if pp, exists := shard.pools[name]; exists {
		return pp, nil
	}
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	pool, err := c.config.Pool(func(ctx context.Context) (*Channel, error) {
		return NewChannel(c.bus, name, c.logger)
	}, c.config.MaxChannelsPerPV)
	if err != nil {
		return nil, err
	}

	pp = &pvPool{name: name, pool: pool}
	if c.config.NewCircuitBreaker != nil {
		pp.circuitBreaker = c.config.NewCircuitBreaker(name)
	}
	shard.pools[name] = pp
	return pp, nil
}

func (c *Client) allPools() []*pvPool {
	var pools []*pvPool
	for i := range c.shards {
		shard := &c.shards[i]
		shard.mu.RLock()
		for _, pp := range shard.pools {
			pools = append(pools, pp)
		}
		shard.mu.RUnlock()
	}
	return pools
}

// reapLoop periodically closes idle channels past their lifetime limits.
func (c *Client) reapLoop() {
	defer c.reaperDone.Done()

	ticker := time.NewTicker(c.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopReaper:
			return
		case <-ticker.C:
			for _, pp := range c.allPools() {
				c.reapPool(pp)
			}
		}
	}
}

// reapPool destroys the idle channels of one pool that are too old or have
// been idle too long.
func (c *Client) reapPool(pp *pvPool) {
	now := time.Now()

	for _, res := range pp.pool.AcquireAllIdle() {
		if c.config.MaxChannelLifetime > 0 && now.Sub(res.CreationTime()) > c.config.MaxChannelLifetime {
			c.logger.Debug("ca: reaping channel past lifetime", zap.String("pv", pp.name))
			res.Destroy()
			continue
		}

		if c.config.MaxChannelIdleTime > 0 && res.IdleDuration() > c.config.MaxChannelIdleTime {
			c.logger.Debug("ca: reaping idle channel", zap.String("pv", pp.name))
			res.Destroy()
			continue
		}

		res.ReleaseUnused()
	}
}

// withChannel runs fn on a pooled channel for name, through the circuit
// breaker when one is configured.
func withChannel[R any](ctx context.Context, c *Client, name string, fn func(context.Context, *Channel) (R, error)) (R, error) {
	v, err := doWithChannel(ctx, c, name, fn)
	c.stats.recordRead(err)
	return v, err
}

func doWithChannel[R any](ctx context.Context, c *Client, name string, fn func(context.Context, *Channel) (R, error)) (R, error) {
	var zero R
	if c.closed.Load() {
		return zero, ErrClientClosed
	}

	pp, err := c.getOrCreatePool(name)
	if err != nil {
		return zero, err
	}

	if pp.circuitBreaker == nil {
		return readPooled(ctx, pp.pool, fn)
	}

	var v R
	_, err = pp.circuitBreaker.Execute(func() (bool, error) {
		var err error
		v, err = readPooled(ctx, pp.pool, fn)
		return err == nil, err
	})
	if err != nil {
		return zero, err
	}
	return v, nil
}

// readPooled runs fn on a channel acquired from pool. A channel that hit a
// contract violation is destroyed rather than reused.
func readPooled[R any](ctx context.Context, pool Pool, fn func(context.Context, *Channel) (R, error)) (R, error) {
	var zero R
	res, err := pool.Acquire(ctx)
	if err != nil {
		return zero, err
	}

	v, err := fn(ctx, res.Value())
	if errors.Is(err, ErrContractViolation) || errors.Is(err, ErrClosed) {
		res.Destroy()
		return zero, err
	}
	res.Release()
	return v, err
}

// Stats returns a snapshot of the client's read counters. DroppedCallbacks
// is read from the bus's context, so Clients sharing a bus report the same
// value.
func (c *Client) Stats() ClientStats {
	s := c.stats.snapshot()
	if bc := lookupContext(c.bus); bc != nil {
		s.DroppedCallbacks = bc.dropped.Load()
	}
	return s
}

// PVPoolStats contains stats for the pool of a single process variable.
type PVPoolStats struct {
	Name                string
	PoolStats           PoolStats
	CircuitBreakerState gobreaker.State
}

// AllPoolStats returns stats for every pool.
func (c *Client) AllPoolStats() []PVPoolStats {
	pools := c.allPools()
	stats := make([]PVPoolStats, 0, len(pools))
	for _, pp := range pools {
		s := PVPoolStats{
			Name:      pp.name,
			PoolStats: pp.pool.Stats(),
		}
		if pp.circuitBreaker != nil {
			s.CircuitBreakerState = pp.circuitBreaker.State()
		}
		stats = append(stats, s)
	}
	return stats
}
