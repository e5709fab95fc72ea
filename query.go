package fetch

import (
	"context"
	"sync"
)

// Query describes a deferred, possibly failing computation of an A. It is a
// pure description; nothing runs until RunQuery evaluates it. Data sources
// return queries so the engine decides when and where evaluation happens.
type Query[A any] interface {
	isQuery(A)
}

// Now is an already-computed value.
type Now[A any] struct {
	Value A
}

// Later is a synchronous thunk, run on the dispatching goroutine.
type Later[A any] struct {
	Thunk func() (A, error)
}

// Async registers completion callbacks with an external completion source
// (an event loop, a client library callback, a channel pump). Exactly one of
// ok or fail should be called; the first call wins and later calls are
// ignored. Register must respect ctx and may return before completion.
type Async[A any] struct {
	Register func(ctx context.Context, ok func(A), fail func(error))
}

func (Now[A]) isQuery(A)   {}
func (Later[A]) isQuery(A) {}
func (Async[A]) isQuery(A) {}

// RunQuery evaluates a query. For Async the wait is bounded by ctx; repeated
// completions are ignored.
func RunQuery[A any](ctx context.Context, q Query[A]) (A, error) {
	var zero A
	switch q := q.(type) {
	case Now[A]:
		return q.Value, nil
	case Later[A]:
		if q.Thunk == nil {
			return zero, ErrNilQuery
		}
		return q.Thunk()
	case Async[A]:
		if q.Register == nil {
			return zero, ErrNilQuery
		}
		type outcome struct {
			value A
			err   error
		}
		done := make(chan outcome, 1)
		var once sync.Once
		q.Register(ctx,
			func(v A) { once.Do(func() { done <- outcome{value: v} }) },
			func(err error) { once.Do(func() { done <- outcome{err: err} }) },
		)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case o := <-done:
			return o.value, o.err
		}
	default:
		return zero, ErrNilQuery
	}
}
