package ca

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Araneidae/epics-ca/cadef"
)

// busContext is the per-bus state shared by every channel on that bus: the
// single client context, and the arenas that resolve the tokens the bus
// hands back to our handlers.
type busContext struct {
	bus    cadef.Bus
	err    error
	logger *zap.Logger

	channels arena[*Channel]
	requests arena[completion]

	dropped atomic.Uint64
}

// completion finishes one read request. It runs on a bus goroutine and must
// copy anything it keeps out of args.Data.
type completion func(args cadef.EventArgs)

var (
	contextsMu sync.Mutex
	contexts   = map[cadef.Bus]*busContext{}
)

// contextFor returns the context for bus, creating the client context on
// first use. A failed creation is remembered and reported to every later
// caller; contexts are never torn down.
//
// Bus implementations are used as map keys and must be comparable, which
// pointer receivers always are.
func contextFor(bus cadef.Bus, logger *zap.Logger) (*busContext, error) {
	contextsMu.Lock()
	defer contextsMu.Unlock()

	if bc, ok := contexts[bus]; ok {
		return bc, bc.err
	}

	bc := &busContext{bus: bus, logger: logger}
	if err := bus.ContextCreate(true); err != nil {
		bc.err = &ContractError{Op: "create context", Err: err}
		logger.Error("ca: client context creation failed", zap.Error(err))
	} else {
		logger.Debug("ca: client context created")
	}
	contexts[bus] = bc
	return bc, bc.err
}

// onConnect is the connection handler registered with every channel.
func (bc *busContext) onConnect(args cadef.ConnectionArgs) {
	tok := bc.bus.Puser(args.Chan)
	ch, ok := bc.channels.lookup(tok)
	if !ok {
		bc.dropped.Add(1)
		bc.logger.Warn("ca: connection event for unknown channel",
			zap.Uint64("token", uint64(tok)), zap.Stringer("op", args.Op))
		return
	}
	ch.handleConnect(args)
}

// onEvent is the event handler passed with every read request. A request's
// slot is freed before its completion runs, so each token completes at most
// once and a callback for an abandoned request is dropped here.
func (bc *busContext) onEvent(args cadef.EventArgs) {
	done, ok := bc.requests.remove(args.Usr)
	if !ok {
		bc.dropped.Add(1)
		bc.logger.Debug("ca: dropped callback for unknown request",
			zap.Uint64("token", uint64(args.Usr)), zap.Int16("type", args.Type))
		return
	}
	done(args)
}

// lookupContext returns the context of bus without creating one.
func lookupContext(bus cadef.Bus) *busContext {
	contextsMu.Lock()
	defer contextsMu.Unlock()
	return contexts[bus]
}
