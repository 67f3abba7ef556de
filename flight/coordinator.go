// Package flight collapses concurrent work for the same key into one call.
package flight

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/robertozimek/eco-tiling/tiling"
	"golang.org/x/sync/singleflight"
)

var ErrDraining = errors.New("coordinator is draining")

// Coordinator runs at most one unit of work per key at a time. Callers that
// arrive while the work runs share its result. The coordinator imposes no
// timeout; work is expected to bound itself.
type Coordinator[T any] struct {
	group singleflight.Group

	mu       sync.Mutex
	draining bool
	pending  sync.WaitGroup
}

func NewCoordinator[T any]() *Coordinator[T] {
	return &Coordinator[T]{}
}

// Do runs work for key unless a call for key is already in flight, in which
// case it waits for that call instead. shared reports whether the result was
// delivered to more than one caller. When ctx ends first Do returns ctx.Err()
// and the work keeps running for the remaining callers.
func (c *Coordinator[T]) Do(ctx context.Context, key string, work func() (T, error)) (value T, shared bool, err error) {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return value, false, ErrDraining
	}
	c.pending.Add(1)
	c.mu.Unlock()

	results := c.group.DoChan(key, func() (interface{}, error) {
		return guard(work)
	})

	select {
	case result := <-results:
		c.pending.Done()
		if result.Err != nil {
			return value, result.Shared, result.Err
		}
		return result.Val.(T), result.Shared, nil
	case <-ctx.Done():
		go func() {
			<-results
			c.pending.Done()
		}()
		return value, false, ctx.Err()
	}
}

// Drain rejects new calls and waits until every in-flight call has finished
// or ctx ends.
func (c *Coordinator[T]) Drain(ctx context.Context) error {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func guard[T any](work func() (T, error)) (value interface{}, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: panic: %v\n%s", tiling.ErrInternalFault, recovered, debug.Stack())
		}
	}()

	return work()
}
