package slotcache

import (
	"context"
	"time"
)

// Hooks defines event callbacks for service operations. Hooks always run
// with no lock held, on the goroutine of the Serve call that triggered them.
// Values passed to hooks are the caller's values and must not be modified.
type Hooks[K comparable, V any] struct {
	// OnHit is called when a serve is answered from the cached slot
	OnHit []OnHitHook[K, V]

	// OnMiss is called when a serve has to compute
	OnMiss []OnMissHook[K]

	// OnCommit is called after a computed value was written into the slot
	OnCommit []OnCommitHook[K, V]

	// OnReplace is called when a commit displaced the entry of a different key
	OnReplace []OnReplaceHook[K]

	// OnError is called when a serve returns an error
	OnError []OnErrorHook[K]
}

// Hook function type definitions
type (
	// OnHitHook is called when a cache hit occurs
	OnHitHook[K comparable, V any] func(ctx context.Context, key K, value V)

	// OnMissHook is called when a cache miss occurs
	OnMissHook[K comparable] func(ctx context.Context, key K)

	// OnCommitHook is called when a computed value is committed. elapsed is
	// how long the computation took.
	OnCommitHook[K comparable, V any] func(ctx context.Context, key K, value V, elapsed time.Duration)

	// OnReplaceHook is called when the entry for evicted was displaced by
	// key. age is how long the evicted entry had been cached.
	OnReplaceHook[K comparable] func(ctx context.Context, evicted, key K, age time.Duration)

	// OnErrorHook is called when a serve fails. elapsed is how long the
	// caller waited.
	OnErrorHook[K comparable] func(ctx context.Context, key K, err error, elapsed time.Duration)
)

// AddOnHit adds an OnHit hook
func (h *Hooks[K, V]) AddOnHit(hook OnHitHook[K, V]) {
	h.OnHit = append(h.OnHit, hook)
}

// AddOnMiss adds an OnMiss hook
func (h *Hooks[K, V]) AddOnMiss(hook OnMissHook[K]) {
	h.OnMiss = append(h.OnMiss, hook)
}

// AddOnCommit adds an OnCommit hook
func (h *Hooks[K, V]) AddOnCommit(hook OnCommitHook[K, V]) {
	h.OnCommit = append(h.OnCommit, hook)
}

// AddOnReplace adds an OnReplace hook
func (h *Hooks[K, V]) AddOnReplace(hook OnReplaceHook[K]) {
	h.OnReplace = append(h.OnReplace, hook)
}

// AddOnError adds an OnError hook
func (h *Hooks[K, V]) AddOnError(hook OnErrorHook[K]) {
	h.OnError = append(h.OnError, hook)
}

// merge appends every hook of other to h
func (h *Hooks[K, V]) merge(other *Hooks[K, V]) {
	if other == nil {
		return
	}
	h.OnHit = append(h.OnHit, other.OnHit...)
	h.OnMiss = append(h.OnMiss, other.OnMiss...)
	h.OnCommit = append(h.OnCommit, other.OnCommit...)
	h.OnReplace = append(h.OnReplace, other.OnReplace...)
	h.OnError = append(h.OnError, other.OnError...)
}

func (h *Hooks[K, V]) invokeOnHit(ctx context.Context, key K, value V) {
	for _, hook := range h.OnHit {
		if hook != nil {
			hook(ctx, key, value)
		}
	}
}

func (h *Hooks[K, V]) invokeOnMiss(ctx context.Context, key K) {
	for _, hook := range h.OnMiss {
		if hook != nil {
			hook(ctx, key)
		}
	}
}

func (h *Hooks[K, V]) invokeOnCommit(ctx context.Context, key K, value V, elapsed time.Duration) {
	for _, hook := range h.OnCommit {
		if hook != nil {
			hook(ctx, key, value, elapsed)
		}
	}
}

func (h *Hooks[K, V]) invokeOnReplace(ctx context.Context, evicted, key K, age time.Duration) {
	for _, hook := range h.OnReplace {
		if hook != nil {
			hook(ctx, evicted, key, age)
		}
	}
}

func (h *Hooks[K, V]) invokeOnError(ctx context.Context, key K, err error, elapsed time.Duration) {
	for _, hook := range h.OnError {
		if hook != nil {
			hook(ctx, key, err, elapsed)
		}
	}
}
