package testutils

import (
	"sync"

	"github.com/Araneidae/epics-ca/cadef"
)

// BusMock is a scriptable implementation of cadef.Bus for testing. Nothing
// happens on its own: tests fire connection events and complete requests
// explicitly, on whichever goroutine they choose.
type BusMock struct {
	// Errors returned by the corresponding Bus methods when set.
	ContextCreateErr error
	CreateErr        error
	GetErr           error
	FlushErr         error
	ClearErr         error

	mu             sync.Mutex
	contextCreates int
	flushes        int
	clearCalls     int
	nextID         cadef.ChanID
	channels       map[cadef.ChanID]*mockChannel
	requests       chan Request
}

type mockChannel struct {
	name      string
	puser     cadef.Token
	onConnect cadef.ConnectHandler
	fieldType int16
	count     uint64
	cleared   bool
}

// Request is a read issued through ArrayGetCallback.
type Request struct {
	Type    int16
	Count   uint64
	Chan    cadef.ChanID
	Handler cadef.EventHandler
	Usr     cadef.Token
}

// Complete invokes the request's handler with a normal status.
func (r Request) Complete(data []byte, count int) {
	r.CompleteAs(r.Type, data, count, cadef.ECANormal)
}

// CompleteAs invokes the request's handler with the given envelope.
func (r Request) CompleteAs(t int16, data []byte, count int, status cadef.Status) {
	r.Handler(cadef.EventArgs{
		Usr:    r.Usr,
		Chan:   r.Chan,
		Type:   t,
		Count:  count,
		Data:   data,
		Status: status,
	})
}

// NewBusMock creates a mock bus that buffers up to 64 unconsumed requests.
func NewBusMock() *BusMock {
	return &BusMock{
		channels: make(map[cadef.ChanID]*mockChannel),
		requests: make(chan Request, 64),
	}
}

var _ cadef.Bus = (*BusMock)(nil)

func (m *BusMock) ContextCreate(preemptive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contextCreates++
	return m.ContextCreateErr
}

func (m *BusMock) CreateChannel(name string, puser cadef.Token, onConnect cadef.ConnectHandler) (cadef.ChanID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	m.nextID++
	m.channels[m.nextID] = &mockChannel{
		name:      name,
		puser:     puser,
		onConnect: onConnect,
		fieldType: cadef.TypeNotConnected,
	}
	return m.nextID, nil
}

func (m *BusMock) Puser(id cadef.ChanID) cadef.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		return ch.puser
	}
	return 0
}

func (m *BusMock) FieldType(id cadef.ChanID) int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		return ch.fieldType
	}
	return cadef.TypeNotConnected
}

func (m *BusMock) ElementCount(id cadef.ChanID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		return ch.count
	}
	return 0
}

func (m *BusMock) ArrayGetCallback(t int16, count uint64, id cadef.ChanID, h cadef.EventHandler, usr cadef.Token) error {
	if m.GetErr != nil {
		return m.GetErr
	}
	m.requests <- Request{Type: t, Count: count, Chan: id, Handler: h, Usr: usr}
	return nil
}

func (m *BusMock) FlushIO() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return m.FlushErr
}

func (m *BusMock) ClearChannel(id cadef.ChanID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	if m.ClearErr != nil {
		return m.ClearErr
	}
	if ch, ok := m.channels[id]; ok {
		ch.cleared = true
	}
	return nil
}

// Requests returns the stream of issued reads.
func (m *BusMock) Requests() <-chan Request {
	return m.requests
}

// ChannelID returns the handle of the most recent channel created for name.
func (m *BusMock) ChannelID(name string) (cadef.ChanID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found cadef.ChanID
	for id, ch := range m.channels {
		if ch.name == name && id > found {
			found = id
		}
	}
	return found, found != 0
}

// SetNative sets what FieldType and ElementCount report for id, without
// firing an event.
func (m *BusMock) SetNative(id cadef.ChanID, fieldType int16, count uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		ch.fieldType = fieldType
		ch.count = count
	}
}

// Connect sets the native type and count of id and fires a connection-up
// event on the calling goroutine.
func (m *BusMock) Connect(id cadef.ChanID, fieldType int16, count uint64) {
	m.SetNative(id, fieldType, count)
	m.Fire(id, cadef.OpConnUp)
}

// Disconnect fires a connection-down event on the calling goroutine.
func (m *BusMock) Disconnect(id cadef.ChanID) {
	m.SetNative(id, cadef.TypeNotConnected, 0)
	m.Fire(id, cadef.OpConnDown)
}

// Fire invokes the connection handler of id with op.
func (m *BusMock) Fire(id cadef.ChanID, op cadef.Op) {
	m.mu.Lock()
	ch, ok := m.channels[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	ch.onConnect(cadef.ConnectionArgs{Chan: id, Op: op})
}

func (m *BusMock) ContextCreates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contextCreates
}

func (m *BusMock) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// ClearCalls returns how many times ClearChannel has been called.
func (m *BusMock) ClearCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCalls
}

// Cleared reports whether ClearChannel succeeded for id.
func (m *BusMock) Cleared(id cadef.ChanID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	return ok && ch.cleared
}
