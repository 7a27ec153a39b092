package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrPanic is wrapped by errors produced when a computation panics.
var ErrPanic = errors.New("async: computation panicked")

// Future is a lazily started, memoized computation. The first Await starts
// it; every later Await shares the same result.
type Future[T any] struct {
	once    sync.Once
	started atomic.Bool
	fn      func(context.Context) (T, error)
	done    chan struct{}

	val T
	err error
}

// NewFuture returns a future that runs fn on first Await.
func NewFuture[T any](fn func(ctx context.Context) (T, error)) *Future[T] {
	return &Future[T]{fn: fn, done: make(chan struct{})}
}

// Resolved returns a future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: v}
	f.once.Do(func() { close(f.done) })
	f.started.Store(true)
	return f
}

// Await starts the computation if needed and waits for its result or for ctx
// to end. The computation itself runs detached from ctx's cancellation so an
// abandoned Await never aborts work other callers are waiting on.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	f.once.Do(func() {
		f.started.Store(true)
		go f.run(context.WithoutCancel(ctx))
	})

	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Started reports whether Await has been called at least once.
func (f *Future[T]) Started() bool {
	return f.started.Load()
}

// Done reports whether the result is available without blocking.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Future[T]) run(ctx context.Context) {
	defer close(f.done)
	f.val, f.err = protect(ctx, f.fn)
}

// protect runs fn and converts a panic into an error wrapping ErrPanic.
func protect[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx)
}
