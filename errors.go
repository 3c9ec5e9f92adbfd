package ca

import (
	"errors"
	"fmt"

	"github.com/Araneidae/epics-ca/cadef"
	"github.com/Araneidae/epics-ca/dbr"
)

var (
	ErrDisconnected = errors.New("ca: channel disconnected")
	ErrClosed       = errors.New("ca: channel closed")
	ErrClientClosed = errors.New("ca: client closed")
	ErrInvalidName  = errors.New("ca: invalid channel name")

	// ErrContractViolation matches every *ContractError.
	ErrContractViolation = errors.New("ca: contract violation")

	ErrDoubleWake     = errors.New("waker woken again before its value was consumed")
	ErrConcurrentWait = errors.New("second wait on a waker that already has a waiter")
)

// ContractError reports a broken usage contract between this package, its
// caller and the bus. It is never retried: the operation that hit it is
// abandoned, and a pooled channel involved in it is destroyed rather than
// reused.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("ca: contract violation in %s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

func (e *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}

// ReadError is delivered when the bus completes a read with a status other
// than normal.
type ReadError struct {
	Name   string
	Type   dbr.Type
	Status cadef.Status
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("ca: read %s as %s: %s", e.Name, e.Type, e.Status)
}

// Is reports a disconnect status as ErrDisconnected.
func (e *ReadError) Is(target error) bool {
	return target == ErrDisconnected && e.Status == cadef.ECADisconn
}
