// Package slot holds the single cached (key, value) pair and its hit/miss
// counters behind one mutex.
//
// Every field of Slot is guarded by mu. Nothing outside this package can
// reach the stored entry except through Check, Commit and Peek, and none of
// those hand out a reference into the slot: values leave through the clone
// function given to New.
package slot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/vnykmshr/slotcache-go/internal/entry"
)

// ErrStateCorruption reports a broken slot invariant. It is only ever used as
// a panic value or wrapped into an error that callers are not expected to
// handle.
var ErrStateCorruption = errors.New("slot state corrupted")

// Counters is a consistent snapshot of the slot counters
type Counters struct {
	// Hits is the number of checks that found the candidate key cached
	Hits uint64

	// Misses is the number of checks that did not
	Misses uint64

	// Replacements is the number of commits that displaced a different key
	Replacements uint64
}

// Total returns Hits + Misses
func (c Counters) Total() uint64 {
	return c.Hits + c.Misses
}

// Slot is a single-entry, last-writer-wins cache
type Slot[K comparable, V any] struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[K, entry.Entry[K, V]]
	clone    func(V) V
	counters Counters

	// displaced is written by the LRU eviction callback, which only runs
	// inside Commit with mu held.
	displaced *entry.Entry[K, V]
}

// New creates an empty slot. clone is applied to every value handed out by
// Check and Peek; nil means values are returned as stored.
func New[K comparable, V any](clone func(V) V) *Slot[K, V] {
	s := &Slot[K, V]{clone: clone}

	// simplelru carries no lock of its own, so mu stays the only lock here.
	lru, err := simplelru.NewLRU[K, entry.Entry[K, V]](1, s.onDisplace)
	if err != nil {
		// Only possible with a non-positive size
		panic("failed to create slot storage: " + err.Error())
	}

	s.lru = lru
	return s
}

// Check compares candidate with the stored key. On a match it counts a hit
// and returns a copy of the stored value; otherwise it counts a miss.
// Comparison and counting happen in one critical section.
func (s *Slot[K, V]) Check(candidate K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.lru.Get(candidate); ok {
		s.counters.Hits++
		return s.copy(e.Value), true
	}

	s.counters.Misses++
	var zero V
	return zero, false
}

// Commit replaces the stored pair with (key, value) as one unit. The slot
// takes ownership of value. If an entry for a different key was displaced it
// is returned so the caller can report it once the lock is released.
func (s *Slot[K, V]) Commit(key K, value V) (entry.Entry[K, V], bool) {
	e := entry.New(key, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.displaced = nil
	s.lru.Add(key, e)

	if s.displaced == nil {
		return entry.Entry[K, V]{}, false
	}

	old := *s.displaced
	s.displaced = nil
	s.counters.Replacements++
	return old, true
}

// Peek returns a copy of the stored entry without touching the counters
func (s *Slot[K, V]) Peek() (entry.Entry[K, V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch n := s.lru.Len(); n {
	case 0:
		return entry.Entry[K, V]{}, false
	case 1:
		key, e, _ := s.lru.GetOldest()
		if !e.Matches(key) {
			panic(fmt.Errorf("%w: slot key %v holds entry for %v", ErrStateCorruption, key, e.Key))
		}
		e.Value = s.copy(e.Value)
		return e, true
	default:
		panic(fmt.Errorf("%w: %d entries in a single slot", ErrStateCorruption, n))
	}
}

// Stats returns the counters read under a single lock acquisition
func (s *Slot[K, V]) Stats() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func (s *Slot[K, V]) onDisplace(_ K, e entry.Entry[K, V]) {
	s.displaced = &e
}

func (s *Slot[K, V]) copy(v V) V {
	if s.clone == nil {
		return v
	}
	return s.clone(v)
}
