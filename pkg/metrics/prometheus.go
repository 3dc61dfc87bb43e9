package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter implements the Exporter interface for Prometheus metrics
type PrometheusExporter struct {
	config     *Config
	registry   prometheus.Registerer
	deltas     counterDeltas
	labelNames []string

	// Counters
	hitsTotal         *prometheus.CounterVec
	missesTotal       *prometheus.CounterVec
	replacementsTotal *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec

	// Histograms
	operationDuration *prometheus.HistogramVec

	// Gauges
	inFlight *prometheus.GaugeVec
	hitRate  *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// PrometheusConfig holds Prometheus-specific configuration
type PrometheusConfig struct {
	// Registry is the Prometheus registry to use (optional, uses default if nil)
	Registry prometheus.Registerer

	// DurationBuckets for the operation duration histogram
	DurationBuckets []float64

	// LabelNames lists the per-call labels kept as variable labels next to
	// cache_name. Prometheus fixes label names at registration, so per-call
	// labels not listed here are not exported; Config.Labels are constant.
	LabelNames []string
}

// NewPrometheusExporter creates a new Prometheus metrics exporter and
// registers its collectors
func NewPrometheusExporter(config *Config, promConfig *PrometheusConfig) (*PrometheusExporter, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	if promConfig == nil {
		promConfig = &PrometheusConfig{}
	}

	registry := promConfig.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	durationBuckets := promConfig.DurationBuckets
	if durationBuckets == nil {
		durationBuckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5}
	}

	exporter := &PrometheusExporter{
		config:     config,
		registry:   registry,
		labelNames: append([]string{LabelCacheName}, promConfig.LabelNames...),
	}

	if err := exporter.createStandardMetrics(prometheus.Labels(config.Labels), durationBuckets); err != nil {
		exporter.Close()
		return nil, fmt.Errorf("failed to create standard metrics: %w", err)
	}

	return exporter, nil
}

// createStandardMetrics creates and registers all collectors
func (p *PrometheusExporter) createStandardMetrics(constLabels prometheus.Labels, durationBuckets []float64) error {
	names := p.config.MetricNames
	base := p.labelNames

	p.hitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.HitsTotal, Help: "Total number of serves answered from the cached slot", ConstLabels: constLabels,
	}, base)
	p.missesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.MissesTotal, Help: "Total number of serves that had to compute", ConstLabels: constLabels,
	}, base)
	p.replacementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.ReplacementsTotal, Help: "Total number of commits that displaced a different key", ConstLabels: constLabels,
	}, base)
	p.failuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.FailuresTotal, Help: "Total number of failed computations", ConstLabels: constLabels,
	}, base)
	p.operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.OperationsTotal, Help: "Total number of recorded operations", ConstLabels: constLabels,
	}, withLabels(base, "operation", "result"))

	p.inFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: names.InFlight, Help: "Current number of running computations", ConstLabels: constLabels,
	}, base)
	p.hitRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: names.HitRate, Help: "Hit rate as a percentage", ConstLabels: constLabels,
	}, base)

	collectors := []prometheus.Collector{
		p.hitsTotal, p.missesTotal, p.replacementsTotal, p.failuresTotal,
		p.operationsTotal, p.inFlight, p.hitRate,
	}

	if p.config.IncludeDetailedTimings {
		p.operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        names.OperationDuration,
			Help:        "Operation duration in seconds",
			ConstLabels: constLabels,
			Buckets:     durationBuckets,
		}, withLabels(base, "operation"))
		collectors = append(collectors, p.operationDuration)
	}

	for _, c := range collectors {
		if err := p.registry.Register(c); err != nil {
			return err
		}
		p.collectors = append(p.collectors, c)
	}

	return nil
}

// ExportStats adds the counter growth since the previous export and sets gauges
func (p *PrometheusExporter) ExportStats(stats Stats, labels Labels) error {
	values := p.labelValues(labels)
	d := p.deltas.advance(seriesKey(labels), stats)

	p.hitsTotal.WithLabelValues(values...).Add(float64(d.hits))
	p.missesTotal.WithLabelValues(values...).Add(float64(d.misses))
	p.replacementsTotal.WithLabelValues(values...).Add(float64(d.replacements))
	p.failuresTotal.WithLabelValues(values...).Add(float64(d.failures))

	p.inFlight.WithLabelValues(values...).Set(float64(stats.InFlight()))
	p.hitRate.WithLabelValues(values...).Set(stats.HitRate())

	return nil
}

// RecordOperation records an operation outcome and, if enabled, its timing
func (p *PrometheusExporter) RecordOperation(operation Operation, result Result, duration time.Duration, labels Labels) error {
	values := p.labelValues(labels)

	p.operationsTotal.WithLabelValues(withLabels(values, string(operation), string(result))...).Inc()

	if p.operationDuration != nil {
		p.operationDuration.WithLabelValues(withLabels(values, string(operation))...).Observe(duration.Seconds())
	}

	return nil
}

// labelValues orders per-call label values by the registered label names.
// Missing labels export as empty strings.
func (p *PrometheusExporter) labelValues(labels Labels) []string {
	values := make([]string, len(p.labelNames))
	values[0] = cacheName(labels)
	for i, name := range p.labelNames[1:] {
		values[i+1] = labels[name]
	}
	return values
}

func withLabels(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

// Close unregisters the exporter's collectors so the same names can be
// registered again by a new exporter
func (p *PrometheusExporter) Close() error {
	for _, c := range p.collectors {
		p.registry.Unregister(c)
	}
	p.collectors = nil
	return nil
}

var _ Exporter = (*PrometheusExporter)(nil)
