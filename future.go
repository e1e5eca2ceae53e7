package oors

import (
	"context"
	"sync"
)

// future is a single-assignment value that readers wait on. It resolves
// exactly once, either with a value or with an error.
type future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

// resolve completes the future. Later calls are ignored.
func (f *future[T]) resolve(v T) bool {
	resolved := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		resolved = true
	})
	return resolved
}

// reject completes the future with an error. Later calls are ignored.
func (f *future[T]) reject(err error) bool {
	rejected := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		rejected = true
	})
	return rejected
}

// await blocks until the future completes or ctx is done.
func (f *future[T]) await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
