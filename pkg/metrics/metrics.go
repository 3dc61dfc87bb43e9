package metrics

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Exporter defines the interface for memoization metrics exporters
// This abstraction allows supporting multiple observability systems
type Exporter interface {
	// ExportStats exports a cumulative statistics snapshot
	ExportStats(stats Stats, labels Labels) error

	// RecordOperation records a single serve or compute with its outcome and timing
	RecordOperation(operation Operation, result Result, duration time.Duration, labels Labels) error

	// Close shuts down the exporter and flushes any pending metrics
	Close() error
}

// Labels represents key-value pairs for metric labels/tags
type Labels map[string]string

// Stats is the statistics view exporters consume. Counter values are
// cumulative since the service was created.
type Stats interface {
	Hits() uint64
	Misses() uint64
	Replacements() uint64
	Failures() uint64
	InFlight() int64
	HitRate() float64
}

// Operation represents the recorded operations
type Operation string

const (
	// OperationServe is one full Serve call, hit or miss
	OperationServe Operation = "serve"

	// OperationCompute is one invocation of the computation function
	OperationCompute Operation = "compute"
)

// Result represents the outcome of an operation
type Result string

const (
	ResultHit     Result = "hit"
	ResultMiss    Result = "miss"
	ResultSuccess Result = "success"
	ResultError   Result = "error"
)

// LabelCacheName is the label every exporter keys its series by
const LabelCacheName = "cache_name"

// MetricNames defines the metric names used across exporters
type MetricNames struct {
	// Counters
	HitsTotal         string
	MissesTotal       string
	ReplacementsTotal string
	FailuresTotal     string
	OperationsTotal   string

	// Histograms
	OperationDuration string

	// Gauges
	InFlight string
	HitRate  string
}

// DefaultMetricNames returns the metric names under the default namespace
func DefaultMetricNames() MetricNames {
	return MetricNamesFor("slotcache")
}

// MetricNamesFor returns the metric names prefixed with namespace
func MetricNamesFor(namespace string) MetricNames {
	prefix := ""
	if namespace != "" {
		prefix = namespace + "_"
	}
	return MetricNames{
		HitsTotal:         prefix + "hits_total",
		MissesTotal:       prefix + "misses_total",
		ReplacementsTotal: prefix + "replacements_total",
		FailuresTotal:     prefix + "failures_total",
		OperationsTotal:   prefix + "operations_total",
		OperationDuration: prefix + "operation_duration_seconds",
		InFlight:          prefix + "inflight_computations",
		HitRate:           prefix + "hit_rate",
	}
}

// Config holds configuration for metrics exporters
type Config struct {
	// Namespace is prepended to all metric names
	Namespace string

	// Labels are constant labels applied to all metrics
	Labels Labels

	// MetricNames allows customizing metric names
	MetricNames MetricNames

	// IncludeDetailedTimings enables the operation duration histogram
	IncludeDetailedTimings bool
}

// NewDefaultConfig creates a default metrics configuration
func NewDefaultConfig() *Config {
	return &Config{
		Namespace:   "slotcache",
		Labels:      make(Labels),
		MetricNames: DefaultMetricNames(),
	}
}

// WithNamespace sets the metrics namespace and renames all metrics accordingly
func (c *Config) WithNamespace(namespace string) *Config {
	c.Namespace = namespace
	c.MetricNames = MetricNamesFor(namespace)
	return c
}

// WithLabels adds constant labels to all metrics
func (c *Config) WithLabels(labels Labels) *Config {
	if c.Labels == nil {
		c.Labels = make(Labels)
	}
	for k, v := range labels {
		c.Labels[k] = v
	}
	return c
}

// WithDetailedTimings enables detailed operation timing metrics
func (c *Config) WithDetailedTimings(enabled bool) *Config {
	c.IncludeDetailedTimings = enabled
	return c
}

// cacheName extracts the cache_name label, defaulting to "default"
func cacheName(labels Labels) string {
	if name, ok := labels[LabelCacheName]; ok && name != "" {
		return name
	}
	return "default"
}

// counterSnapshot holds the monotonic counters of one export
type counterSnapshot struct {
	hits, misses, replacements, failures uint64
}

// counterDeltas turns cumulative snapshots into increments per series, so
// exporters backed by monotonic counters can be fed repeated ExportStats calls.
type counterDeltas struct {
	mu   sync.Mutex
	last map[string]counterSnapshot
}

func (d *counterDeltas) advance(series string, stats Stats) counterSnapshot {
	cur := counterSnapshot{
		hits:         stats.Hits(),
		misses:       stats.Misses(),
		replacements: stats.Replacements(),
		failures:     stats.Failures(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		d.last = make(map[string]counterSnapshot)
	}
	prev := d.last[series]
	d.last[series] = cur

	return counterSnapshot{
		hits:         delta(cur.hits, prev.hits),
		misses:       delta(cur.misses, prev.misses),
		replacements: delta(cur.replacements, prev.replacements),
		failures:     delta(cur.failures, prev.failures),
	}
}

// delta treats a counter that went backwards as a fresh source
func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}

// seriesKey renders labels in a stable order
func seriesKey(labels Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

// MultiExporter allows using multiple exporters simultaneously
type MultiExporter struct {
	exporters []Exporter
}

// NewMultiExporter creates an exporter that writes to multiple backends
func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{
		exporters: exporters,
	}
}

// ExportStats exports to all configured exporters, continuing past failures
func (m *MultiExporter) ExportStats(stats Stats, labels Labels) error {
	var errs []error
	for _, exporter := range m.exporters {
		if err := exporter.ExportStats(stats, labels); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordOperation records to all configured exporters, continuing past failures
func (m *MultiExporter) RecordOperation(operation Operation, result Result, duration time.Duration, labels Labels) error {
	var errs []error
	for _, exporter := range m.exporters {
		if err := exporter.RecordOperation(operation, result, duration, labels); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all configured exporters
func (m *MultiExporter) Close() error {
	var errs []error
	for _, exporter := range m.exporters {
		if err := exporter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpExporter provides a no-op implementation for when metrics are disabled
type NoOpExporter struct{}

// NewNoOpExporter creates a no-op exporter
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

// ExportStats does nothing
func (n *NoOpExporter) ExportStats(Stats, Labels) error { return nil }

// RecordOperation does nothing
func (n *NoOpExporter) RecordOperation(Operation, Result, time.Duration, Labels) error { return nil }

// Close does nothing
func (n *NoOpExporter) Close() error { return nil }

var (
	_ Exporter = (*MultiExporter)(nil)
	_ Exporter = (*NoOpExporter)(nil)
)
