package ca

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Araneidae/epics-ca/cadef"
	"github.com/Araneidae/epics-ca/dbr"
)

// ConnState is the connection state of a Channel.
type ConnState int

const (
	// Unconnected: no connection event has been seen yet.
	Unconnected ConnState = iota
	Disconnected
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// Connection is a snapshot of a channel's state. Type and Count are only
// meaningful when State is Connected.
type Connection struct {
	State ConnState
	Type  dbr.Type // native basic type
	Count int      // native element count, at least 1
}

// Channel is a named connection to one process variable. It tracks the
// connection state reported by the bus and lets any number of goroutines
// wait for it to become connected.
type Channel struct {
	name   string
	bus    cadef.Bus
	bc     *busContext
	token  cadef.Token
	logger *zap.Logger

	mu      sync.Mutex
	id      cadef.ChanID
	conn    Connection
	entry   *basicEntry // decoder for the native type, nil unless connected
	waiters []chan struct{}
	closed  bool

	closeMu  sync.Mutex // serializes Close
	closeErr error      // sticky release failure
}

// NewChannel starts connecting to the named process variable and returns
// immediately; use WaitConnect to wait for the connection. The first channel
// created on a bus also creates the bus's client context.
func NewChannel(bus cadef.Bus, name string, logger *zap.Logger) (*Channel, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bc, err := contextFor(bus, logger)
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		name:   name,
		bus:    bus,
		bc:     bc,
		logger: logger.With(zap.String("pv", name)),
	}
	ch.token = bc.channels.insert(ch)

	id, err := bus.CreateChannel(name, ch.token, bc.onConnect)
	if err != nil {
		bc.channels.remove(ch.token)
		ch.logger.Error("ca: create channel failed", zap.Error(err))
		return nil, &ContractError{Op: "create channel " + name, Err: err}
	}

	ch.mu.Lock()
	ch.id = id
	ch.mu.Unlock()

	ch.logger.Debug("ca: channel created")
	return ch, nil
}

// Connect creates a channel and waits for it to connect, returning the
// channel with its native type and element count.
func Connect(ctx context.Context, bus cadef.Bus, name string, logger *zap.Logger) (*Channel, Connection, error) {
	ch, err := NewChannel(bus, name, logger)
	if err != nil {
		return nil, Connection{}, err
	}
	conn, err := ch.WaitConnect(ctx)
	if err != nil {
		_ = ch.Close()
		return nil, Connection{}, err
	}
	return ch, conn, nil
}

// Name returns the process variable name the channel was created for.
func (ch *Channel) Name() string {
	return ch.name
}

// State returns the current connection snapshot without blocking.
func (ch *Channel) State() Connection {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.conn
}

// handleConnect applies one connection event. It runs on a bus goroutine.
// Only a transition to Connected releases waiters.
func (ch *Channel) handleConnect(args cadef.ConnectionArgs) {
	next := Connection{State: Disconnected}
	var entry *basicEntry

	switch args.Op {
	case cadef.OpConnUp:
		ft := ch.bus.FieldType(args.Chan)
		count := ch.bus.ElementCount(args.Chan)
		e, ok := lookupBasic(ft)
		switch {
		case !ok:
			ch.logger.Warn("ca: connected with unsupported native type", zap.Int16("type", ft))
		case count == 0:
			ch.logger.Warn("ca: connected with zero element count", zap.Stringer("type", e.typ))
		default:
			next = Connection{State: Connected, Type: e.typ, Count: int(count)}
			entry = e
		}
	case cadef.OpConnDown:
	default:
		ch.logger.Warn("ca: unexpected connection op", zap.Stringer("op", args.Op))
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.conn = next
	ch.entry = entry
	if next.State == Connected {
		for _, w := range ch.waiters {
			close(w)
		}
		ch.waiters = nil
	}
	ch.logger.Debug("ca: connection event",
		zap.Stringer("op", args.Op), zap.Stringer("state", next.State))
}

// WaitConnect blocks until the channel is Connected and returns the
// connection recorded by the most recent connection event. Disconnect events
// do not release waiters. It returns ctx.Err() if ctx ends first and
// ErrClosed if the channel is closed.
func (ch *Channel) WaitConnect(ctx context.Context) (Connection, error) {
	for {
		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			return Connection{}, ErrClosed
		}
		if ch.conn.State == Connected {
			conn := ch.conn
			ch.mu.Unlock()
			return conn, nil
		}
		w := make(chan struct{})
		ch.waiters = append(ch.waiters, w)
		ch.mu.Unlock()

		select {
		case <-w:
			// Re-check: the channel may have dropped again, or been closed.
		case <-ctx.Done():
			ch.removeWaiter(w)
			return Connection{}, ctx.Err()
		}
	}
}

func (ch *Channel) removeWaiter(w chan struct{}) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i, x := range ch.waiters {
		if x == w {
			ch.waiters = append(ch.waiters[:i], ch.waiters[i+1:]...)
			return
		}
	}
}

// connected returns the handle and native decoder of a connected channel.
func (ch *Channel) connected() (cadef.ChanID, *basicEntry, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch {
	case ch.closed:
		return 0, nil, ErrClosed
	case ch.conn.State != Connected:
		return 0, nil, fmt.Errorf("%w: %s", ErrDisconnected, ch.name)
	}
	return ch.id, ch.entry, nil
}

// Close releases the channel. Waiters are released with ErrClosed. Once the
// bus has cleared the channel no handler can reach it any more, and only
// then is its token retired. Close is idempotent: if the bus refused the
// release, every later Close returns the same *ContractError and the bus is
// not asked again.
func (ch *Channel) Close() error {
	ch.closeMu.Lock()
	defer ch.closeMu.Unlock()

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return ch.closeErr
	}
	ch.closed = true
	for _, w := range ch.waiters {
		close(w)
	}
	ch.waiters = nil
	id := ch.id
	ch.mu.Unlock()

	if err := ch.bus.ClearChannel(id); err != nil {
		// The bus may still call us with this token, so it stays live.
		ch.logger.Error("ca: clear channel failed", zap.Error(err))
		ch.closeErr = &ContractError{Op: "clear channel " + ch.name, Err: err}
		return ch.closeErr
	}
	ch.bc.channels.remove(ch.token)
	ch.logger.Debug("ca: channel closed")
	return nil
}

func (ch *Channel) String() string {
	return fmt.Sprintf("Channel(%s)", ch.name)
}
