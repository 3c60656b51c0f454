package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// Future is the eventual result of asynchronous work.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns an already resolved future.
func Completed[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v, nil)
	return f
}

// Resolve sets the result. Only the first call has any effect.
func (f *Future[T]) Resolve(v T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
		resolved = true
	})
	return resolved
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx is done.
// Never call Wait from the loop on a future the loop resolves.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then runs fn on the loop once the future resolves.
func (f *Future[T]) Then(l *Loop, fn func(T, error)) {
	if f.Resolved() {
		l.Post(func() { fn(f.val, f.err) })
		return
	}
	go func() {
		<-f.done
		l.Post(func() { fn(f.val, f.err) })
	}()
}

// Async runs work on its own goroutine and delivers the result to then on the loop.
func Async[T any](l *Loop, work func() (T, error), then func(T, error)) {
	go func() {
		v, err := protect(work)
		l.Post(func() { then(v, err) })
	}()
}

func protect[T any](work func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return work()
}
