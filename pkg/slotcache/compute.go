package slotcache

import (
	"context"
	"errors"
	"slices"

	"github.com/vnykmshr/slotcache-go/internal/slot"
)

var (
	// ErrNilCompute is returned by New when no computation is given
	ErrNilCompute = errors.New("slotcache: compute function is nil")

	// ErrNoExporter is returned by New when metrics are enabled without an exporter
	ErrNoExporter = errors.New("slotcache: metrics enabled without an exporter")

	// ErrLossyPacking reports a value that does not decode back to itself,
	// such as a struct with unexported fields or an interface holding an
	// int. Such values are returned to the caller but never committed.
	ErrLossyPacking = errors.New("slotcache: packed value does not decode to the computed value")

	// ErrStateCorruption reports cached state that can no longer be trusted,
	// such as a packed value that fails to decode. Callers are not expected
	// to recover from it.
	ErrStateCorruption = slot.ErrStateCorruption
)

// ComputeFunc is the computation a Service memoizes. It must be
// deterministic for a given key, must not call back into the Service, and
// may be slow or fail. ctx is the caller's context, passed through unchanged.
type ComputeFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// FromFunc adapts a context-free computation
func FromFunc[K comparable, V any](fn func(K) (V, error)) ComputeFunc[K, V] {
	if fn == nil {
		return nil
	}
	return func(_ context.Context, key K) (V, error) {
		return fn(key)
	}
}

// FromPureFunc adapts a computation that cannot fail
func FromPureFunc[K comparable, V any](fn func(K) V) ComputeFunc[K, V] {
	if fn == nil {
		return nil
	}
	return func(_ context.Context, key K) (V, error) {
		return fn(key), nil
	}
}

// CloneSlice copies a slice result. Use it with WithClone for services whose
// values are slices:
//
//	svc, err := slotcache.New(compute, slotcache.WithClone[int64](slotcache.CloneSlice[int64]))
func CloneSlice[E any](s []E) []E {
	return slices.Clone(s)
}
