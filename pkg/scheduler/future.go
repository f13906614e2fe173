// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"

	"graphreasoner/pkg/errkind"
)

// Future yields the result of a Task once it completes.
type Future struct {
	done   chan struct{}
	result interface{}
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result interface{}, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Wait blocks until the future completes or ctx is cancelled, whichever
// comes first.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, errkind.Wrap(errkind.Timeout, "wait on future cancelled", ctx.Err())
	}
}

// Done reports whether the future has already completed, without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// BatchFuture yields the results of a SubmitBatch call, in submission
// order.
type BatchFuture struct {
	futures []*Future
}

// Wait blocks until every constituent future completes, returning results
// in submission order. The first error encountered (in submission order)
// is returned alongside the partial results collected so far.
func (b *BatchFuture) Wait(ctx context.Context) ([]interface{}, error) {
	results := make([]interface{}, len(b.futures))
	var firstErr error
	for i, f := range b.futures {
		r, err := f.Wait(ctx)
		results[i] = r
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}
