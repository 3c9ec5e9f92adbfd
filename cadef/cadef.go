// Package cadef describes the boundary between this module and a Channel
// Access client runtime: the Bus interface a runtime implements, and the
// handles, tokens and codes that cross it.
//
// A Bus owns its own goroutines (or native threads). Connection and event
// handlers are invoked on them, asynchronously with respect to any caller.
//
// Library-wide invariant: a Bus has a single client context for the life of
// the process. It is created on first use, by whichever channel is created
// first, and is never destroyed.
package cadef

import (
	"errors"
	"fmt"
)

// ChanID is the opaque handle of a channel inside the bus.
type ChanID uintptr

// Token is an opaque correlation value. The bus stores it and hands it back
// unchanged; it is never dereferenced.
type Token uint64

// Op is the connection event code.
type Op int64

const (
	OpConnUp   Op = 6
	OpConnDown Op = 7
)

func (op Op) String() string {
	switch op {
	case OpConnUp:
		return "CONN_UP"
	case OpConnDown:
		return "CONN_DOWN"
	}
	return fmt.Sprintf("OP(%d)", int64(op))
}

// TypeNotConnected is the field type reported for an unconnected channel.
const TypeNotConnected int16 = -1

// ConnectionArgs is passed to a ConnectHandler.
type ConnectionArgs struct {
	Chan ChanID
	Op   Op
}

// EventArgs is passed to an EventHandler once per read request.
type EventArgs struct {
	Usr    Token  // token supplied with the request
	Chan   ChanID
	Type   int16  // DBR type code of Data
	Count  int    // number of elements actually delivered
	Data   []byte // valid only for the duration of the handler call
	Status Status
}

// ConnectHandler is invoked on every connection state transition.
type ConnectHandler func(args ConnectionArgs)

// EventHandler is invoked at most once per read request.
type EventHandler func(args EventArgs)

// Bus is the contract this module depends on.
type Bus interface {
	// ContextCreate initialises the client context. Called once per Bus.
	ContextCreate(preemptive bool) error

	// CreateChannel starts connecting to the named variable. onConnect is
	// later called, once per transition, with the returned handle. puser is
	// retrievable from the handle through Puser.
	CreateChannel(name string, puser Token, onConnect ConnectHandler) (ChanID, error)

	// Puser returns the token registered with CreateChannel.
	Puser(id ChanID) Token

	// FieldType returns the native DBR type of a connected channel, or
	// TypeNotConnected.
	FieldType(id ChanID) int16

	// ElementCount returns the native element count, 0 if not connected.
	ElementCount(id ChanID) uint64

	// ArrayGetCallback queues a read of count elements (0 for the native
	// count) delivered as DBR type t. h is called at most once, with usr.
	ArrayGetCallback(t int16, count uint64, id ChanID, h EventHandler, usr Token) error

	// FlushIO sends queued requests. Without it requests may be held back
	// indefinitely.
	FlushIO() error

	// ClearChannel releases a handle. Once it returns without error no
	// handler referencing id will run.
	ClearChannel(id ChanID) error
}

// Status is a Channel Access status code.
type Status int32

// Status codes used by this module, with their Channel Access values.
const (
	ECANormal   Status = 1
	ECAAllocMem Status = 48
	ECABadType  Status = 114
	ECABadCount Status = 176
	ECABadChID  Status = 410
	ECADisconn  Status = 192
	ECABadStr   Status = 186
	ECAGetFail  Status = 320
)

var statusMessages = map[Status]string{
	ECANormal:   "normal successful completion",
	ECAAllocMem: "unable to allocate memory",
	ECABadType:  "invalid DBR type",
	ECABadCount: "invalid element count",
	ECABadChID:  "invalid channel identifier",
	ECADisconn:  "virtual circuit disconnect",
	ECABadStr:   "invalid string",
	ECAGetFail:  "get request failed",
}

// OK reports whether s is ECANormal.
func (s Status) OK() bool {
	return s == ECANormal
}

func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("status %d", int32(s))
}

// ErrStatus matches any *StatusError with errors.Is.
var ErrStatus = errors.New("cadef: bus error")

// StatusError is returned by a Bus call that did not complete normally.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cadef: %s: %s", e.Op, e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}
