// Package sim is an in-process Channel Access bus. It serves a fixed set of
// process variables through cadef.Bus so that the client stack can run
// without a network, in tests and in cmd/caget.
//
// Callbacks are delivered on a single worker goroutine, in the order they
// were queued. Reads are queued by ArrayGetCallback and only become
// deliverable after FlushIO, as with the real client library.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Araneidae/epics-ca/cadef"
	"github.com/Araneidae/epics-ca/dbr"
)

var (
	ErrUnknownPV = errors.New("sim: unknown process variable")
	ErrClosed    = errors.New("sim: bus closed")
)

// PV declares one simulated process variable.
type PV struct {
	Name string

	// Values is a slice of the Go element type of the PV's native type, for
	// example []float64 for DOUBLE. Its length is the native element count.
	Values any

	// Meta is the alarm state, timestamp and control metadata served with
	// the values. A zero timestamp is replaced by the creation time.
	Meta dbr.Meta

	// Offline PVs start disconnected; see SetConnected.
	Offline bool
}

type pvState struct {
	name      string
	native    dbr.Type
	values    any
	count     int
	meta      dbr.Meta
	connected bool
}

type simChannel struct {
	pv        *pvState // nil while the name is unknown
	name      string
	puser     cadef.Token
	onConnect cadef.ConnectHandler
}

type pendingRead struct {
	t     dbr.Type
	count int
	id    cadef.ChanID
	h     cadef.EventHandler
	usr   cadef.Token
}

// Bus is a simulated cadef.Bus. Its handlers must not call ClearChannel.
type Bus struct {
	logger *zap.Logger

	mu             sync.Mutex
	pvs            map[string]*pvState
	channels       map[cadef.ChanID]*simChannel
	nextID         cadef.ChanID
	pending        []pendingRead
	queue          []func()
	contextCreates int
	closed         bool

	// cbMu is held while a handler runs, so ClearChannel can wait for an
	// in-flight handler to return.
	cbMu sync.Mutex

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

var _ cadef.Bus = (*Bus)(nil)

// New creates a bus serving pvs and starts its worker goroutine.
func New(pvs []PV, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		logger:   logger,
		pvs:      make(map[string]*pvState, len(pvs)),
		channels: make(map[cadef.ChanID]*simChannel),
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	now := dbr.TimestampOf(time.Now())
	for _, pv := range pvs {
		native, count, ok := elementType(pv.Values)
		if !ok {
			return nil, fmt.Errorf("sim: pv %q: unsupported values %T", pv.Name, pv.Values)
		}
		if _, dup := b.pvs[pv.Name]; dup {
			return nil, fmt.Errorf("sim: pv %q declared twice", pv.Name)
		}
		meta := pv.Meta
		if meta.Timestamp == (dbr.Timestamp{}) {
			meta.Timestamp = now
		}
		b.pvs[pv.Name] = &pvState{
			name:      pv.Name,
			native:    native,
			values:    pv.Values,
			count:     count,
			meta:      meta,
			connected: !pv.Offline,
		}
	}

	go b.run()
	return b, nil
}

// Close stops the worker. Queued callbacks are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.queue = nil
	b.pending = nil
	b.mu.Unlock()

	close(b.stop)
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case <-b.notify:
		}

		for {
			b.mu.Lock()
			if b.closed || len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			fn := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()

			b.cbMu.Lock()
			fn()
			b.cbMu.Unlock()
		}
	}
}

// enqueueLocked schedules fns on the worker; must be called with mu held.
func (b *Bus) enqueueLocked(fns ...func()) {
	if b.closed {
		return
	}
	b.queue = append(b.queue, fns...)
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// ContextCreate records the call. It may be called at most once.
func (b *Bus) ContextCreate(preemptive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contextCreates++
	if b.contextCreates > 1 {
		return &cadef.StatusError{Op: "context create", Status: cadef.ECAAllocMem}
	}
	return nil
}

// ContextCreates returns how many times ContextCreate was called.
func (b *Bus) ContextCreates() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contextCreates
}

// CreateChannel registers a channel. If the name is known and online a
// connection event is queued; unknown names stay unconnected forever.
func (b *Bus) CreateChannel(name string, puser cadef.Token, onConnect cadef.ConnectHandler) (cadef.ChanID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	if name == "" || len(name) > dbr.MaxStringSize {
		return 0, &cadef.StatusError{Op: "create channel", Status: cadef.ECABadStr}
	}

	b.nextID++
	id := b.nextID
	ch := &simChannel{pv: b.pvs[name], name: name, puser: puser, onConnect: onConnect}
	b.channels[id] = ch
	if ch.pv != nil && ch.pv.connected {
		b.enqueueLocked(b.connectEvent(id, cadef.OpConnUp))
	}
	return id, nil
}

// connectEvent builds a queued connection callback for id.
func (b *Bus) connectEvent(id cadef.ChanID, op cadef.Op) func() {
	return func() {
		b.mu.Lock()
		ch, ok := b.channels[id]
		b.mu.Unlock()
		if !ok {
			return
		}
		ch.onConnect(cadef.ConnectionArgs{Chan: id, Op: op})
	}
}

func (b *Bus) Puser(id cadef.ChanID) cadef.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.channels[id]; ok {
		return ch.puser
	}
	return 0
}

// liveLocked returns the PV behind a connected channel; must be called with
// mu held.
func (b *Bus) liveLocked(id cadef.ChanID) (*pvState, bool) {
	ch, ok := b.channels[id]
	if !ok || ch.pv == nil || !ch.pv.connected {
		return nil, false
	}
	return ch.pv, true
}

func (b *Bus) FieldType(id cadef.ChanID) int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pv, ok := b.liveLocked(id); ok {
		return int16(pv.native)
	}
	return cadef.TypeNotConnected
}

func (b *Bus) ElementCount(id cadef.ChanID) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pv, ok := b.liveLocked(id); ok {
		return uint64(pv.count)
	}
	return 0
}

// ArrayGetCallback queues a read until the next FlushIO. A count of 0
// requests the native count.
func (b *Bus) ArrayGetCallback(t int16, count uint64, id cadef.ChanID, h cadef.EventHandler, usr cadef.Token) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.channels[id]; !ok {
		return &cadef.StatusError{Op: "array get", Status: cadef.ECABadChID}
	}
	pv, ok := b.liveLocked(id)
	if !ok {
		return &cadef.StatusError{Op: "array get", Status: cadef.ECADisconn}
	}
	if !dbr.Type(t).Valid() {
		return &cadef.StatusError{Op: "array get", Status: cadef.ECABadType}
	}
	if count > uint64(pv.count) {
		return &cadef.StatusError{Op: "array get", Status: cadef.ECABadCount}
	}

	n := int(count)
	if n == 0 {
		n = pv.count
	}
	b.pending = append(b.pending, pendingRead{t: dbr.Type(t), count: n, id: id, h: h, usr: usr})
	return nil
}

// FlushIO releases every queued read to the worker.
func (b *Bus) FlushIO() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, r := range b.pending {
		b.enqueueLocked(b.readEvent(r))
	}
	b.pending = nil
	return nil
}

// readEvent builds the queued completion of r. The record is encoded from
// the PV's state at delivery time.
func (b *Bus) readEvent(r pendingRead) func() {
	return func() {
		args := cadef.EventArgs{Usr: r.usr, Chan: r.id, Type: int16(r.t), Status: cadef.ECANormal}

		b.mu.Lock()
		_, exists := b.channels[r.id]
		pv, live := b.liveLocked(r.id)
		var rec []byte
		var err error
		if live {
			n := min(r.count, pv.count)
			var values any
			values, err = convert(pv.values, n, r.t.Basic(), pv.meta.Ctrl.EnumStrings)
			if err == nil {
				meta := pv.meta
				if pv.native != dbr.Enum {
					meta.Ctrl.EnumStrings = nil
				}
				rec, err = dbr.Encode(r.t, meta, values)
			}
			args.Count = n
		}
		b.mu.Unlock()

		switch {
		case !exists:
			return
		case !live:
			args.Status = cadef.ECADisconn
		case err != nil:
			b.logger.Warn("sim: read failed", zap.Uint64("chan", uint64(r.id)), zap.Error(err))
			args.Status = cadef.ECABadType
			args.Count = 0
		default:
			args.Data = rec
		}
		r.h(args)
	}
}

// ClearChannel removes a channel. When it returns, no handler for id is
// running and none will run.
func (b *Bus) ClearChannel(id cadef.ChanID) error {
	b.mu.Lock()
	if _, ok := b.channels[id]; !ok {
		b.mu.Unlock()
		return &cadef.StatusError{Op: "clear channel", Status: cadef.ECABadChID}
	}
	delete(b.channels, id)
	b.mu.Unlock()

	// Wait out a handler that may have looked the channel up already.
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	return nil
}

// SetConnected takes a PV on or off line, queueing a connection event for
// every channel open to it.
func (b *Bus) SetConnected(name string, up bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pv, ok := b.pvs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPV, name)
	}
	if pv.connected == up {
		return nil
	}
	pv.connected = up

	op := cadef.OpConnDown
	if up {
		op = cadef.OpConnUp
	}
	for id, ch := range b.channels {
		if ch.pv == pv {
			b.enqueueLocked(b.connectEvent(id, op))
		}
	}
	return nil
}

// Update replaces the values of a PV and stamps it with the current time.
// values must have the PV's native element type; its length becomes the
// new element count.
func (b *Bus) Update(name string, values any) error {
	t, n, ok := elementType(values)
	if !ok {
		return fmt.Errorf("sim: unsupported values %T", values)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pv, ok := b.pvs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPV, name)
	}
	if t != pv.native {
		return fmt.Errorf("sim: pv %q is %s, not %s", name, pv.native, t)
	}
	pv.values = values
	pv.count = n
	pv.meta.Timestamp = dbr.TimestampOf(time.Now())
	return nil
}

// SetAlarm sets the alarm state served with a PV.
func (b *Bus) SetAlarm(name string, ss dbr.StatusSeverity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pv, ok := b.pvs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPV, name)
	}
	pv.meta.StatusSeverity = ss
	return nil
}
