package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	hits, misses, replacements, failures uint64
	inFlight                             int64
}

func (f fakeStats) Hits() uint64         { return f.hits }
func (f fakeStats) Misses() uint64       { return f.misses }
func (f fakeStats) Replacements() uint64 { return f.replacements }
func (f fakeStats) Failures() uint64     { return f.failures }
func (f fakeStats) InFlight() int64      { return f.inFlight }
func (f fakeStats) HitRate() float64 {
	total := f.hits + f.misses
	if total == 0 {
		return 0
	}
	return float64(f.hits) / float64(total) * 100
}

type recordingExporter struct {
	stats  []Stats
	ops    []Operation
	err    error
	closed bool
}

func (r *recordingExporter) ExportStats(stats Stats, _ Labels) error {
	r.stats = append(r.stats, stats)
	return r.err
}

func (r *recordingExporter) RecordOperation(op Operation, _ Result, _ time.Duration, _ Labels) error {
	r.ops = append(r.ops, op)
	return r.err
}

func (r *recordingExporter) Close() error {
	r.closed = true
	return r.err
}

func TestMetricNamesFor(t *testing.T) {
	names := MetricNamesFor("factorizer")
	assert.Equal(t, "factorizer_hits_total", names.HitsTotal)
	assert.Equal(t, "factorizer_operation_duration_seconds", names.OperationDuration)

	assert.Equal(t, "hits_total", MetricNamesFor("").HitsTotal)
	assert.Equal(t, "slotcache_misses_total", DefaultMetricNames().MissesTotal)
}

func TestConfigBuilders(t *testing.T) {
	config := NewDefaultConfig().
		WithNamespace("svc").
		WithLabels(Labels{"env": "test"}).
		WithDetailedTimings(true)

	assert.Equal(t, "svc", config.Namespace)
	assert.Equal(t, "svc_failures_total", config.MetricNames.FailuresTotal)
	assert.Equal(t, "test", config.Labels["env"])
	assert.True(t, config.IncludeDetailedTimings)
}

func TestCounterDeltas(t *testing.T) {
	var d counterDeltas

	first := d.advance("a", fakeStats{hits: 3, misses: 2})
	assert.Equal(t, counterSnapshot{hits: 3, misses: 2}, first)

	second := d.advance("a", fakeStats{hits: 5, misses: 2, failures: 1})
	assert.Equal(t, counterSnapshot{hits: 2, failures: 1}, second)

	// Independent series
	other := d.advance("b", fakeStats{hits: 1})
	assert.Equal(t, counterSnapshot{hits: 1}, other)

	// A source that restarted counts from zero again
	reset := d.advance("a", fakeStats{hits: 1})
	assert.Equal(t, counterSnapshot{hits: 1}, reset)
}

func TestSeriesKeyIsOrderIndependent(t *testing.T) {
	a := seriesKey(Labels{"x": "1", "y": "2"})
	b := seriesKey(Labels{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
}

func TestCacheNameDefault(t *testing.T) {
	assert.Equal(t, "default", cacheName(nil))
	assert.Equal(t, "default", cacheName(Labels{LabelCacheName: ""}))
	assert.Equal(t, "f", cacheName(Labels{LabelCacheName: "f"}))
}

func TestMultiExporterFansOut(t *testing.T) {
	a, b := &recordingExporter{}, &recordingExporter{}
	m := NewMultiExporter(a, b)

	require.NoError(t, m.ExportStats(fakeStats{hits: 1}, nil))
	require.NoError(t, m.RecordOperation(OperationServe, ResultHit, time.Millisecond, nil))
	require.NoError(t, m.Close())

	for _, e := range []*recordingExporter{a, b} {
		assert.Len(t, e.stats, 1)
		assert.Equal(t, []Operation{OperationServe}, e.ops)
		assert.True(t, e.closed)
	}
}

func TestMultiExporterContinuesPastErrors(t *testing.T) {
	boom := errors.New("boom")
	failing, healthy := &recordingExporter{err: boom}, &recordingExporter{}
	m := NewMultiExporter(failing, healthy)

	err := m.ExportStats(fakeStats{}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, healthy.stats, 1)
}

func TestNoOpExporter(t *testing.T) {
	n := NewNoOpExporter()
	assert.NoError(t, n.ExportStats(fakeStats{}, nil))
	assert.NoError(t, n.RecordOperation(OperationCompute, ResultError, 0, nil))
	assert.NoError(t, n.Close())
}
