package entry

import (
	"fmt"
	"time"
)

// Entry is a committed (key, value) pair. A zero Entry represents the empty slot.
type Entry[K comparable, V any] struct {
	// Key is the input the value was computed for
	Key K

	// Value is the computed result for Key
	Value V

	// CommittedAt is when this pair was written into the slot
	CommittedAt time.Time
}

// New creates an entry for the given pair stamped with the current time
func New[K comparable, V any](key K, value V) Entry[K, V] {
	return Entry[K, V]{
		Key:         key,
		Value:       value,
		CommittedAt: time.Now(),
	}
}

// Age returns how long ago this entry was committed
func (e Entry[K, V]) Age() time.Duration {
	if e.CommittedAt.IsZero() {
		return 0
	}
	return time.Since(e.CommittedAt)
}

// Matches reports whether candidate equals the stored key
func (e Entry[K, V]) Matches(candidate K) bool {
	return e.Key == candidate
}

// String returns a string representation of the entry (for debugging)
func (e Entry[K, V]) String() string {
	if e.CommittedAt.IsZero() {
		return "Entry{empty}"
	}
	return fmt.Sprintf("Entry{key: %v, committed: %s}", e.Key, e.CommittedAt.Format(time.RFC3339))
}
