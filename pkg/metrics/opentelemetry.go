package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OpenTelemetryExporter implements the Exporter interface for OpenTelemetry metrics
type OpenTelemetryExporter struct {
	config *Config
	meter  metric.Meter
	ctx    context.Context
	deltas counterDeltas

	hitsCounter         metric.Int64Counter
	missesCounter       metric.Int64Counter
	replacementsCounter metric.Int64Counter
	failuresCounter     metric.Int64Counter
	operationsCounter   metric.Int64Counter

	operationDuration metric.Float64Histogram

	inFlightGauge metric.Int64Gauge
	hitRateGauge  metric.Float64Gauge
}

// OpenTelemetryConfig holds OpenTelemetry-specific configuration
type OpenTelemetryConfig struct {
	// Meter is the OpenTelemetry meter to use
	Meter metric.Meter

	// Context is the context to use for metric operations
	Context context.Context
}

// NewOpenTelemetryExporter creates a new OpenTelemetry metrics exporter
func NewOpenTelemetryExporter(config *Config, otelConfig *OpenTelemetryConfig) (*OpenTelemetryExporter, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	if otelConfig == nil || otelConfig.Meter == nil {
		return nil, fmt.Errorf("OpenTelemetry meter is required")
	}

	ctx := otelConfig.Context
	if ctx == nil {
		ctx = context.Background()
	}

	exporter := &OpenTelemetryExporter{
		config: config,
		meter:  otelConfig.Meter,
		ctx:    ctx,
	}

	if err := exporter.createStandardMetrics(); err != nil {
		return nil, fmt.Errorf("failed to create standard metrics: %w", err)
	}

	return exporter, nil
}

// createStandardMetrics creates all instruments
func (o *OpenTelemetryExporter) createStandardMetrics() error {
	names := o.config.MetricNames

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&o.hitsCounter, names.HitsTotal, "Total number of serves answered from the cached slot"},
		{&o.missesCounter, names.MissesTotal, "Total number of serves that had to compute"},
		{&o.replacementsCounter, names.ReplacementsTotal, "Total number of commits that displaced a different key"},
		{&o.failuresCounter, names.FailuresTotal, "Total number of failed computations"},
		{&o.operationsCounter, names.OperationsTotal, "Total number of recorded operations"},
	}

	for _, c := range counters {
		counter, err := o.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.target = counter
	}

	var err error
	if o.config.IncludeDetailedTimings {
		o.operationDuration, err = o.meter.Float64Histogram(
			names.OperationDuration,
			metric.WithDescription("Operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return fmt.Errorf("failed to create operation duration histogram: %w", err)
		}
	}

	o.inFlightGauge, err = o.meter.Int64Gauge(
		names.InFlight,
		metric.WithDescription("Current number of running computations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create in-flight gauge: %w", err)
	}

	o.hitRateGauge, err = o.meter.Float64Gauge(
		names.HitRate,
		metric.WithDescription("Hit rate as a percentage"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return fmt.Errorf("failed to create hit rate gauge: %w", err)
	}

	return nil
}

// ExportStats adds the counter growth since the previous export and records gauges
func (o *OpenTelemetryExporter) ExportStats(stats Stats, labels Labels) error {
	attrs := metric.WithAttributes(o.attributes(labels)...)
	d := o.deltas.advance(seriesKey(labels), stats)

	o.hitsCounter.Add(o.ctx, clampInt64(d.hits), attrs)
	o.missesCounter.Add(o.ctx, clampInt64(d.misses), attrs)
	o.replacementsCounter.Add(o.ctx, clampInt64(d.replacements), attrs)
	o.failuresCounter.Add(o.ctx, clampInt64(d.failures), attrs)

	o.inFlightGauge.Record(o.ctx, stats.InFlight(), attrs)
	o.hitRateGauge.Record(o.ctx, stats.HitRate(), attrs)

	return nil
}

// RecordOperation records an operation outcome and, if enabled, its timing
func (o *OpenTelemetryExporter) RecordOperation(operation Operation, result Result, duration time.Duration, labels Labels) error {
	attrs := append(o.attributes(labels),
		attribute.String("operation", string(operation)),
		attribute.String("result", string(result)),
	)

	o.operationsCounter.Add(o.ctx, 1, metric.WithAttributes(attrs...))

	if o.operationDuration != nil {
		o.operationDuration.Record(o.ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}

	return nil
}

// Close shuts down the exporter
func (o *OpenTelemetryExporter) Close() error {
	// The meter provider owns flushing
	return nil
}

func (o *OpenTelemetryExporter) attributes(labels Labels) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)+len(o.config.Labels)+2)

	for k, v := range o.config.Labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	return attrs
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

var _ Exporter = (*OpenTelemetryExporter)(nil)
