package slotcache

import (
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/slotcache-go/pkg/compression"
	"github.com/vnykmshr/slotcache-go/pkg/metrics"
)

// DefaultName is the service name used when Config.Name is empty
const DefaultName = "default"

// MetricsConfig holds metrics exporter configuration
type MetricsConfig struct {
	// Exporter is the metrics exporter to use
	Exporter metrics.Exporter

	// Enabled determines whether metrics collection is enabled
	Enabled bool

	// CacheName is the cache_name label applied to all metrics for this service
	// Default: Config.Name
	CacheName string

	// ReportingInterval determines how often to export stats automatically
	// Set to 0 to disable automatic reporting
	ReportingInterval time.Duration

	// Labels are additional labels applied to all metrics. The Prometheus
	// exporter keeps only those named in PrometheusConfig.LabelNames.
	Labels metrics.Labels
}

// Config defines the configuration options for a Service
type Config struct {
	// Name identifies the service in logs and metrics
	// Default: "default"
	Name string

	// Logger receives the service's own log output
	// Default: zap.NewNop()
	Logger *zap.Logger

	// CoalesceMisses makes concurrent misses for the same key share one
	// computation. Every caller still counts its own miss. The shared
	// computation sees the first caller's context values but none of its
	// cancellation; each caller stops waiting when its own context is done.
	// Default: false
	CoalesceMisses bool

	// Metrics holds metrics exporter configuration
	// If nil, no metrics will be exported
	Metrics *MetricsConfig

	// Compression holds value packing configuration
	// If nil or disabled, values are cached as-is
	Compression *compression.Config
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Name:   DefaultName,
		Logger: zap.NewNop(),
	}
}

// WithName sets the service name
func (c *Config) WithName(name string) *Config {
	c.Name = name
	return c
}

// WithLogger sets the logger used by the service
func (c *Config) WithLogger(logger *zap.Logger) *Config {
	c.Logger = logger
	return c
}

// WithCoalescing enables or disables miss coalescing
func (c *Config) WithCoalescing(enabled bool) *Config {
	c.CoalesceMisses = enabled
	return c
}

// WithMetrics configures metrics export
func (c *Config) WithMetrics(metricsConfig *MetricsConfig) *Config {
	c.Metrics = metricsConfig
	return c
}

// WithMetricsExporter configures metrics with the given exporter
func (c *Config) WithMetricsExporter(exporter metrics.Exporter, cacheName string) *Config {
	c.Metrics = &MetricsConfig{
		Exporter:          exporter,
		Enabled:           true,
		CacheName:         cacheName,
		ReportingInterval: 30 * time.Second,
		Labels:            make(metrics.Labels),
	}
	return c
}

// WithMetricsLabels adds labels to metrics configuration
func (c *Config) WithMetricsLabels(labels metrics.Labels) *Config {
	c.ensureMetrics()
	for k, v := range labels {
		c.Metrics.Labels[k] = v
	}
	return c
}

// WithMetricsReportingInterval sets the metrics reporting interval
func (c *Config) WithMetricsReportingInterval(interval time.Duration) *Config {
	c.ensureMetrics()
	c.Metrics.ReportingInterval = interval
	return c
}

func (c *Config) ensureMetrics() {
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{
			ReportingInterval: 30 * time.Second,
		}
	}
	if c.Metrics.Labels == nil {
		c.Metrics.Labels = make(metrics.Labels)
	}
}

// WithCompression configures value packing
func (c *Config) WithCompression(compressionConfig *compression.Config) *Config {
	c.Compression = compressionConfig
	return c
}

// WithCompressionEnabled enables packing with default settings
func (c *Config) WithCompressionEnabled(enabled bool) *Config {
	c.ensureCompression()
	c.Compression.Enabled = enabled
	return c
}

// WithCompressionAlgorithm sets the compression algorithm
func (c *Config) WithCompressionAlgorithm(algorithm compression.CompressorType) *Config {
	c.ensureCompression()
	c.Compression.Algorithm = algorithm
	return c
}

// WithCompressionMinSize sets the minimum serialized size that gets compressed
func (c *Config) WithCompressionMinSize(minSize int) *Config {
	c.ensureCompression()
	c.Compression.MinSize = minSize
	return c
}

// WithCompressionLevel sets the compression level
func (c *Config) WithCompressionLevel(level int) *Config {
	c.ensureCompression()
	c.Compression.Level = level
	return c
}

func (c *Config) ensureCompression() {
	if c.Compression == nil {
		c.Compression = compression.NewDefaultConfig()
	}
}

func (c *Config) name() string {
	if c.Name == "" {
		return DefaultName
	}
	return c.Name
}

func (c *Config) compressionEnabled() bool {
	return c.Compression != nil && c.Compression.Enabled
}
