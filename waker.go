package ca

import (
	"context"
	"sync"
)

type wakerState int

const (
	wakerIdle wakerState = iota
	wakerWaiting
	wakerReady
)

// AsyncWaker hands a single value from a callback running on a bus goroutine
// to one waiting goroutine. It is a three state slot guarded by one mutex:
// Idle, Waiting (a goroutine is parked on it) or Ready (a value is held).
//
// Wake and Wait may happen in either order. Exactly one request may be in
// flight per waker; once its value has been consumed the waker is Idle again
// and may be reused.
type AsyncWaker[T any] struct {
	mu     sync.Mutex
	state  wakerState
	parked chan struct{}
	value  T
}

// NewAsyncWaker returns an Idle waker.
func NewAsyncWaker[T any]() *AsyncWaker[T] {
	return &AsyncWaker[T]{}
}

// Wake stores v and releases the waiting goroutine, if any. Waking a waker
// that already holds an unconsumed value is a contract violation: the second
// value is not stored and the error must be reported by the caller.
func (w *AsyncWaker[T]) Wake(v T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case wakerReady:
		return &ContractError{Op: "wake", Err: ErrDoubleWake}
	case wakerWaiting:
		close(w.parked)
		w.parked = nil
	}
	w.state = wakerReady
	w.value = v
	return nil
}

// Wait returns the value passed to Wake, blocking until it arrives. A second
// Wait while one is already parked is a contract violation.
//
// If ctx ends first Wait returns ctx.Err() and the waker returns to Idle. A
// value that had already arrived is returned instead of the context error.
func (w *AsyncWaker[T]) Wait(ctx context.Context) (T, error) {
	w.mu.Lock()
	switch w.state {
	case wakerReady:
		defer w.mu.Unlock()
		return w.take()
	case wakerWaiting:
		w.mu.Unlock()
		var zero T
		return zero, &ContractError{Op: "wait", Err: ErrConcurrentWait}
	}
	parked := make(chan struct{})
	w.state = wakerWaiting
	w.parked = parked
	w.mu.Unlock()

	select {
	case <-parked:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.take()
	case <-ctx.Done():
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.state == wakerReady {
			return w.take()
		}
		w.state = wakerIdle
		w.parked = nil
		var zero T
		return zero, ctx.Err()
	}
}

// take consumes a Ready value; must be called with the lock held.
func (w *AsyncWaker[T]) take() (T, error) {
	var zero T
	if w.state != wakerReady {
		// Someone else consumed the value between the release and our
		// re-lock, which only a second concurrent waiter can do.
		return zero, &ContractError{Op: "wait", Err: ErrConcurrentWait}
	}
	v := w.value
	w.value = zero
	w.state = wakerIdle
	return v, nil
}

// isWaiting reports whether a goroutine is parked on w.
func (w *AsyncWaker[T]) isWaiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == wakerWaiting
}
