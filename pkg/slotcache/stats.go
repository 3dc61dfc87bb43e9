package slotcache

import (
	"fmt"

	"github.com/vnykmshr/slotcache-go/pkg/metrics"
)

// Stats is a point-in-time snapshot of service statistics.
//
// Hits, Misses and Replacements are read together under the slot lock, so
// they always agree with each other. Failures and InFlight are read
// separately and may be a few operations ahead or behind.
type Stats struct {
	hits         uint64
	misses       uint64
	replacements uint64
	failures     uint64
	inFlight     int64
}

// Hits returns the number of serves answered from the cached slot
func (s Stats) Hits() uint64 {
	return s.hits
}

// Misses returns the number of serves that had to compute
func (s Stats) Misses() uint64 {
	return s.misses
}

// Replacements returns the number of commits that displaced a different key
func (s Stats) Replacements() uint64 {
	return s.replacements
}

// Failures returns the number of serves that returned an error
func (s Stats) Failures() uint64 {
	return s.failures
}

// InFlight returns the number of computations running when the snapshot was taken
func (s Stats) InFlight() int64 {
	return s.inFlight
}

// Total returns the total number of serves (hits + misses)
func (s Stats) Total() uint64 {
	return s.hits + s.misses
}

// HitRate returns the hit rate as a percentage (0-100)
func (s Stats) HitRate() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.hits) / float64(total) * 100
}

func (s Stats) String() string {
	return fmt.Sprintf("hits=%d misses=%d total=%d hit_rate=%.2f%% replacements=%d failures=%d in_flight=%d",
		s.hits, s.misses, s.Total(), s.HitRate(), s.replacements, s.failures, s.inFlight)
}

var _ metrics.Stats = Stats{}
