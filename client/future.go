package client

import (
	"context"
	"errors"
	"fmt"
)

// ErrPending is returned by Future.Result before the future completes.
var ErrPending = errors.New("future is still pending")

// FutureState is where a Future is in its life.
type FutureState int

const (
	Pending  FutureState = iota
	Resolved             // completed with a value
	Rejected             // completed with an error
)

func (s FutureState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Future is the result of a call running in the background. It completes exactly once.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Async runs fn in a new goroutine and returns its Future.
func Async[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// Done is closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future completes or ctx ends. Abandoning the wait does not
// stop the call.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) State() FutureState {
	select {
	case <-f.done:
		if f.err != nil {
			return Rejected
		}
		return Resolved
	default:
		return Pending
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		var zero T
		return zero, ErrPending
	}
}
