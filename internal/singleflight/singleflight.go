package singleflight

import (
	"context"
	"errors"
	"sync"
)

// ErrLeaderPanicked is returned to callers that were waiting on a computation
// whose function panicked.
var ErrLeaderPanicked = errors.New("singleflight: shared computation panicked")

// Group coalesces concurrent calls that share a key into a single execution.
// The zero value is ready to use.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

// call is one in-flight execution.
type call[V any] struct {
	done chan struct{}

	// Written once by the leader before done is closed.
	val V
	err error

	// Guarded by Group.mu.
	followers int
}

// Do runs fn for key unless an execution for key is already in flight, in
// which case it waits for that execution and returns its result.
// shared reports whether the result went to more than one caller.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (v V, err error, shared bool) {
	return g.DoContext(context.Background(), key, fn)
}

// DoContext is like Do, but a caller that joins an existing execution stops
// waiting when ctx is done. The execution itself is never interrupted; the
// leader always runs fn to completion.
func (g *Group[K, V]) DoContext(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}
	if c, ok := g.calls[key]; ok {
		c.followers++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			return v, ctx.Err(), false
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	shared = g.lead(c, key, fn)
	return c.val, c.err, shared
}

// lead executes fn and releases every follower, even if fn panics.
func (g *Group[K, V]) lead(c *call[V], key K, fn func() (V, error)) (shared bool) {
	defer func() {
		g.mu.Lock()
		delete(g.calls, key)
		shared = c.followers > 0
		g.mu.Unlock()
		close(c.done)
	}()

	c.err = ErrLeaderPanicked
	c.val, c.err = fn()
	return shared
}

// InFlight returns the number of keys currently being executed.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
