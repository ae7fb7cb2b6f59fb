package orchestrator

import (
	"context"
	"sync"
)

// Result is the single-settlement future every public call returns. The
// settled flag guards against double resolution: the platform may report
// the same failure through more than one event source (the open request,
// the handle and the operation request), and only the first settlement
// wins.
//
// Thread-safety: all methods are safe for concurrent use.
type Result[T any] struct {
	mu      sync.Mutex
	settled bool
	value   T
	err     error
	done    chan struct{}
}

func newResult[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

// rejected creates an already failed result.
func rejected[T any](err error) *Result[T] {
	r := newResult[T]()
	r.reject(err)
	return r
}

// resolve settles the result with a value. Returns false if already settled.
func (r *Result[T]) resolve(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return false
	}
	r.settled = true
	r.value = v
	close(r.done)
	return true
}

// reject settles the result with an error. Returns false if already settled.
func (r *Result[T]) reject(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return false
	}
	r.settled = true
	r.err = err
	close(r.done)
	return true
}

// Await blocks until the result settles or the context ends. There is no
// cancellation of the underlying call: a context error only abandons the
// wait, the dispatched operation still runs to completion.
func (r *Result[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed on settlement.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Settled reports whether the result has settled.
func (r *Result[T]) Settled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled
}
