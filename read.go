package ca

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Araneidae/epics-ca/cadef"
	"github.com/Araneidae/epics-ca/dbr"
)

// Timed is a value together with its alarm state and timestamp.
type Timed[V any] struct {
	Value V
	dbr.StatusSeverity
	Timestamp time.Time
}

// Controlled is a value together with its alarm state and control
// metadata.
type Controlled[V any] struct {
	Value V
	dbr.StatusSeverity
	Ctrl dbr.Ctrl
}

// decodeFunc turns the record delivered to a read callback into a result.
// rec is only valid for the duration of the call.
type decodeFunc[R any] func(t dbr.Type, rec []byte, count int) (R, error)

type readResult[R any] struct {
	value R
	err   error
}

// ReadValue reads one element of the channel as T. The request is issued
// with T's own type code; the bus converts from the native type.
func ReadValue[T dbr.Element](ctx context.Context, ch *Channel) (T, error) {
	return read[T](ctx, ch, dbr.TypeOf[T](), 1, decodeValue[T])
}

// ReadVector reads every element of the channel as T.
func ReadVector[T dbr.Element](ctx context.Context, ch *Channel) ([]T, error) {
	return read[[]T](ctx, ch, dbr.TypeOf[T](), 0, decodeVector[T])
}

// ReadTimed reads one element as T with its alarm status and timestamp.
func ReadTimed[T dbr.Element](ctx context.Context, ch *Channel) (Timed[T], error) {
	t := dbr.Compose(dbr.TypeOf[T](), dbr.FamilyTime)
	return read[Timed[T]](ctx, ch, t, 1, withTime[T](decodeValue[T]))
}

// ReadTimedVector reads every element as T with alarm status and timestamp.
func ReadTimedVector[T dbr.Element](ctx context.Context, ch *Channel) (Timed[[]T], error) {
	t := dbr.Compose(dbr.TypeOf[T](), dbr.FamilyTime)
	return read[Timed[[]T]](ctx, ch, t, 0, withTime[[]T](decodeVector[T]))
}

// ReadCtrl reads one element as T with alarm status and control limits.
func ReadCtrl[T dbr.Element](ctx context.Context, ch *Channel) (Controlled[T], error) {
	t := dbr.Compose(dbr.TypeOf[T](), dbr.FamilyCtrl)
	return read[Controlled[T]](ctx, ch, t, 1, withCtrl[T](decodeValue[T]))
}

// ReadCtrlVector reads every element as T with alarm status and control
// limits.
func ReadCtrlVector[T dbr.Element](ctx context.Context, ch *Channel) (Controlled[[]T], error) {
	t := dbr.Compose(dbr.TypeOf[T](), dbr.FamilyCtrl)
	return read[Controlled[[]T]](ctx, ch, t, 0, withCtrl[[]T](decodeVector[T]))
}

func decodeValue[T dbr.Element](t dbr.Type, rec []byte, _ int) (T, error) {
	return dbr.Value[T](t, rec)
}

func decodeVector[T dbr.Element](t dbr.Type, rec []byte, count int) ([]T, error) {
	return dbr.Vector[T](t, rec, count)
}

func withTime[V any](decode decodeFunc[V]) decodeFunc[Timed[V]] {
	return func(t dbr.Type, rec []byte, count int) (Timed[V], error) {
		v, err := decode(t, rec, count)
		if err != nil {
			return Timed[V]{}, err
		}
		extra, err := dbr.DecodeExtra(t, rec)
		if err != nil {
			return Timed[V]{}, err
		}
		return Timed[V]{Value: v, StatusSeverity: extra.StatusSeverity, Timestamp: extra.Timestamp.Time()}, nil
	}
}

func withCtrl[V any](decode decodeFunc[V]) decodeFunc[Controlled[V]] {
	return func(t dbr.Type, rec []byte, count int) (Controlled[V], error) {
		v, err := decode(t, rec, count)
		if err != nil {
			return Controlled[V]{}, err
		}
		extra, err := dbr.DecodeExtra(t, rec)
		if err != nil {
			return Controlled[V]{}, err
		}
		return Controlled[V]{Value: v, StatusSeverity: extra.StatusSeverity, Ctrl: *extra.Ctrl}, nil
	}
}

// read waits for ch to connect and then issues one request.
func read[R any](ctx context.Context, ch *Channel, t dbr.Type, count uint64, decode decodeFunc[R]) (R, error) {
	var zero R
	id, _, err := waitEntry(ctx, ch)
	if err != nil {
		return zero, err
	}
	return issue(ctx, ch, id, t, count, decode)
}

// issue sends a single read of count elements (0 for the native count) as
// type t and waits for its callback. The callback and this goroutine meet in
// a fresh AsyncWaker reached through a request token.
//
// If ctx ends first the token is retired, so the callback, which the bus
// cannot cancel, is dropped when it eventually arrives.
func issue[R any](ctx context.Context, ch *Channel, id cadef.ChanID, t dbr.Type, count uint64, decode decodeFunc[R]) (R, error) {
	var zero R
	waker := NewAsyncWaker[readResult[R]]()

	token := ch.bc.requests.insert(func(args cadef.EventArgs) {
		var res readResult[R]
		switch got := dbr.Type(args.Type); {
		case !args.Status.OK():
			res.err = &ReadError{Name: ch.name, Type: t, Status: args.Status}
		case got != t:
			res.err = &dbr.DecodeError{Type: got, Message: "delivered for a " + t.String() + " request"}
		default:
			res.value, res.err = decode(t, args.Data, args.Count)
		}
		if err := waker.Wake(res); err != nil {
			ch.logger.Error("ca: read completion rejected", zap.Error(err))
		}
	})

	if err := ch.bus.ArrayGetCallback(int16(t), count, id, ch.bc.onEvent, token); err != nil {
		ch.bc.requests.remove(token)
		return zero, ch.requestError("array get", err)
	}
	if err := ch.bus.FlushIO(); err != nil {
		ch.bc.requests.remove(token)
		return zero, ch.requestError("flush io", err)
	}

	res, err := waker.Wait(ctx)
	if err != nil {
		ch.bc.requests.remove(token)
		return zero, err
	}
	return res.value, res.err
}

// requestError classifies a synchronous rejection from the bus. A channel
// that dropped between connection and request is an ordinary disconnect;
// anything else breaks the request contract.
func (ch *Channel) requestError(op string, err error) error {
	var se *cadef.StatusError
	if errors.As(err, &se) && se.Status == cadef.ECADisconn {
		return fmt.Errorf("%w: %s: %v", ErrDisconnected, ch.name, err)
	}
	ch.logger.Error("ca: request rejected", zap.String("op", op), zap.Error(err))
	return &ContractError{Op: op + " " + ch.name, Err: err}
}
