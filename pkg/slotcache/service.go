package slotcache

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vnykmshr/slotcache-go/internal/singleflight"
	"github.com/vnykmshr/slotcache-go/internal/slot"
	"github.com/vnykmshr/slotcache-go/pkg/compression"
	"github.com/vnykmshr/slotcache-go/pkg/metrics"
)

// stored is what the slot holds: either the value itself or its packed form
type stored[V any] struct {
	value  V
	packed *compression.Packed
}

// Service memoizes a ComputeFunc over the single most recent key
type Service[K comparable, V any] struct {
	config  *Config
	compute ComputeFunc[K, V]
	clone   func(V) V
	hooks   *Hooks[K, V]
	logger  *zap.Logger

	slot  *slot.Slot[K, stored[V]]
	group *singleflight.Group[K, V]

	failures atomic.Uint64
	inFlight atomic.Int64

	// Compression
	compressor compression.Compressor

	// Metrics
	metricsExporter metrics.Exporter
	metricsLabels   metrics.Labels
	metricsStop     chan struct{}
	metricsWg       sync.WaitGroup
	closeOnce       sync.Once
	closeErr        error
}

// Option configures a Service at construction
type Option[K comparable, V any] func(*options[K, V])

type options[K comparable, V any] struct {
	config *Config
	clone  func(V) V
	hooks  []*Hooks[K, V]
}

// WithClone sets the function used to copy values into and out of the
// slot. Without it, values are shared with the slot as-is, which is only
// safe for immutable values.
func WithClone[K comparable, V any](clone func(V) V) Option[K, V] {
	return func(o *options[K, V]) {
		o.clone = clone
	}
}

// WithHooks adds event hooks. It may be given more than once.
func WithHooks[K comparable, V any](hooks *Hooks[K, V]) Option[K, V] {
	return func(o *options[K, V]) {
		o.hooks = append(o.hooks, hooks)
	}
}

// WithConfig replaces the default configuration
func WithConfig[K comparable, V any](config *Config) Option[K, V] {
	return func(o *options[K, V]) {
		o.config = config
	}
}

// New creates a Service around compute
func New[K comparable, V any](compute ComputeFunc[K, V], opts ...Option[K, V]) (*Service[K, V], error) {
	if compute == nil {
		return nil, ErrNilCompute
	}

	o := &options[K, V]{}
	for _, opt := range opts {
		opt(o)
	}

	config := o.config
	if config == nil {
		config = NewDefaultConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service[K, V]{
		config:  config,
		compute: compute,
		clone:   o.clone,
		hooks:   &Hooks[K, V]{},
		logger: logger.With(
			zap.String("service", config.name()),
			zap.String("instance", uuid.NewString()),
		),
	}
	for _, h := range o.hooks {
		s.hooks.merge(h)
	}

	s.slot = slot.New[K, stored[V]](s.cloneStored)

	if config.CoalesceMisses {
		s.group = &singleflight.Group[K, V]{}
	}

	if err := s.initializeCompression(); err != nil {
		return nil, fmt.Errorf("failed to initialize compression: %w", err)
	}

	if err := s.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	s.logger.Debug("Service created",
		zap.Bool("coalesce_misses", config.CoalesceMisses),
		zap.Bool("compression", s.compressor != nil),
		zap.Bool("clone", s.clone != nil),
	)

	return s, nil
}

// NewWithConfig creates a Service with the given configuration
func NewWithConfig[K comparable, V any](config *Config, compute ComputeFunc[K, V], opts ...Option[K, V]) (*Service[K, V], error) {
	return New(compute, append([]Option[K, V]{WithConfig[K, V](config)}, opts...)...)
}

// Serve returns the result of the computation for key, from the cached slot
// when key is the most recently committed input.
//
// A miss runs the computation without holding any lock and then commits
// (key, result) as one unit; the last commit wins. A computation error is
// returned unchanged and leaves the slot untouched.
func (s *Service[K, V]) Serve(ctx context.Context, key K) (V, error) {
	start := time.Now()

	if cached, ok := s.slot.Check(key); ok {
		value, err := s.thaw(key, cached)
		if err != nil {
			return s.fail(ctx, key, err, start)
		}
		s.hooks.invokeOnHit(ctx, key, value)
		s.recordOperation(metrics.OperationServe, metrics.ResultHit, time.Since(start))
		return value, nil
	}

	s.logger.Debug("Cache miss", zap.Any("key", key))
	s.hooks.invokeOnMiss(ctx, key)

	value, err := s.load(ctx, key)
	if err != nil {
		return s.fail(ctx, key, err, start)
	}

	s.recordOperation(metrics.OperationServe, metrics.ResultMiss, time.Since(start))
	return value, nil
}

// load produces the value for a missed key, sharing the computation with
// concurrent callers when coalescing is enabled
func (s *Service[K, V]) load(ctx context.Context, key K) (V, error) {
	if s.group == nil {
		return s.computeAndCommit(ctx, key)
	}

	// The shared computation keeps the leader's values but not its deadline,
	// so a leader giving up cannot fail followers that are still waiting
	detached := context.WithoutCancel(ctx)
	value, err, shared := s.group.DoContext(ctx, key, func() (V, error) {
		return s.computeAndCommit(detached, key)
	})
	if err != nil {
		var zero V
		return zero, err
	}

	// Every caller of a shared computation received the same value
	if shared {
		value = s.copy(value)
	}
	return value, nil
}

func (s *Service[K, V]) computeAndCommit(ctx context.Context, key K) (V, error) {
	start := time.Now()
	value, err := s.run(ctx, key)
	elapsed := time.Since(start)

	if err != nil {
		s.recordOperation(metrics.OperationCompute, metrics.ResultError, elapsed)
		var zero V
		return zero, err
	}

	s.recordOperation(metrics.OperationCompute, metrics.ResultSuccess, elapsed)
	s.commit(ctx, key, value, elapsed)
	return value, nil
}

func (s *Service[K, V]) run(ctx context.Context, key K) (V, error) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	return s.compute(ctx, key)
}

func (s *Service[K, V]) commit(ctx context.Context, key K, value V, elapsed time.Duration) {
	frozen, err := s.freeze(value)
	if err != nil {
		s.logger.Warn("Failed to pack value, skipping commit", zap.Any("key", key), zap.Error(err))
		return
	}

	evicted, replaced := s.slot.Commit(key, frozen)

	s.hooks.invokeOnCommit(ctx, key, value, elapsed)
	if replaced {
		s.hooks.invokeOnReplace(ctx, evicted.Key, key, evicted.Age())
	}
}

func (s *Service[K, V]) fail(ctx context.Context, key K, err error, start time.Time) (V, error) {
	elapsed := time.Since(start)
	s.failures.Add(1)
	s.logger.Debug("Serve failed", zap.Any("key", key), zap.Error(err))
	s.hooks.invokeOnError(ctx, key, err, elapsed)
	s.recordOperation(metrics.OperationServe, metrics.ResultError, elapsed)

	var zero V
	return zero, err
}

// freeze turns a computed value into the form the slot owns
func (s *Service[K, V]) freeze(value V) (stored[V], error) {
	if s.compressor == nil {
		return stored[V]{value: s.copy(value)}, nil
	}

	packed, err := compression.Pack(value, s.compressor, s.config.Compression.MinSize)
	if err != nil {
		return stored[V]{}, err
	}

	// A hit must return what the miss returned
	decoded, err := compression.Unpack[V](packed, s.compressor)
	if err != nil {
		return stored[V]{}, err
	}
	if !reflect.DeepEqual(value, decoded) {
		return stored[V]{}, ErrLossyPacking
	}

	return stored[V]{packed: &packed}, nil
}

// thaw turns what Check handed out into a value the caller owns
func (s *Service[K, V]) thaw(key K, st stored[V]) (V, error) {
	if st.packed == nil {
		return st.value, nil
	}

	value, err := compression.Unpack[V](*st.packed, s.compressor)
	if err != nil {
		s.logger.Error("Cached value cannot be decoded", zap.Any("key", key), zap.Error(err))
		var zero V
		return zero, fmt.Errorf("%w: %w", ErrStateCorruption, err)
	}
	return value, nil
}

// cloneStored is the slot's copy function. Packed data is never written
// after Pack, so only raw values need copying.
func (s *Service[K, V]) cloneStored(st stored[V]) stored[V] {
	if st.packed == nil {
		st.value = s.copy(st.value)
	}
	return st
}

func (s *Service[K, V]) copy(v V) V {
	if s.clone == nil {
		return v
	}
	return s.clone(v)
}

// Stats returns the current service statistics
func (s *Service[K, V]) Stats() Stats {
	c := s.slot.Stats()
	return Stats{
		hits:         c.Hits,
		misses:       c.Misses,
		replacements: c.Replacements,
		failures:     s.failures.Load(),
		inFlight:     s.inFlight.Load(),
	}
}

// Peek returns the cached pair without counting a hit or a miss. ok is
// false when nothing has been committed yet or the cached value cannot be
// decoded.
func (s *Service[K, V]) Peek() (key K, value V, ok bool) {
	e, found := s.slot.Peek()
	if !found {
		return key, value, false
	}

	value, err := s.thaw(e.Key, e.Value)
	if err != nil {
		return e.Key, value, false
	}
	return e.Key, value, true
}

// Func returns the memoized computation as a ComputeFunc
func (s *Service[K, V]) Func() ComputeFunc[K, V] {
	return s.Serve
}

// Close stops the metrics reporter after one final export and closes the
// exporter. Serve keeps working after Close.
func (s *Service[K, V]) Close() error {
	s.closeOnce.Do(func() {
		if s.metricsStop != nil {
			close(s.metricsStop)
			s.metricsWg.Wait()
		}
		if s.metricsExporter != nil {
			s.closeErr = s.metricsExporter.Close()
		}
		s.logger.Debug("Service closed", zap.Stringer("stats", s.Stats()))
	})
	return s.closeErr
}

// initializeCompression sets up value packing if enabled
func (s *Service[K, V]) initializeCompression() error {
	if !s.config.compressionEnabled() {
		return nil
	}

	compressor, err := compression.NewCompressor(s.config.Compression)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}

	s.compressor = compressor
	return nil
}

// initializeMetrics sets up metrics collection if enabled
func (s *Service[K, V]) initializeMetrics() error {
	mc := s.config.Metrics
	if mc == nil || !mc.Enabled {
		s.metricsExporter = metrics.NewNoOpExporter()
		return nil
	}
	if mc.Exporter == nil {
		return ErrNoExporter
	}

	s.metricsExporter = mc.Exporter

	s.metricsLabels = make(metrics.Labels, len(mc.Labels)+1)
	for k, v := range mc.Labels {
		s.metricsLabels[k] = v
	}
	s.metricsLabels[metrics.LabelCacheName] = s.config.name()
	if mc.CacheName != "" {
		s.metricsLabels[metrics.LabelCacheName] = mc.CacheName
	}

	// Start automatic stats reporting if interval is configured
	if mc.ReportingInterval > 0 {
		s.metricsStop = make(chan struct{})
		s.metricsWg.Add(1)
		go s.metricsReporter(mc.ReportingInterval)
	}

	return nil
}

// metricsReporter periodically exports service statistics
func (s *Service[K, V]) metricsReporter(interval time.Duration) {
	defer s.metricsWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.exportCurrentStats()
		case <-s.metricsStop:
			// Final stats export before shutting down
			s.exportCurrentStats()
			return
		}
	}
}

// exportCurrentStats exports the current statistics to metrics
func (s *Service[K, V]) exportCurrentStats() {
	if err := s.metricsExporter.ExportStats(s.Stats(), s.metricsLabels); err != nil {
		s.logger.Debug("Failed to export stats", zap.Error(err))
	}
}

// recordOperation records an operation with timing for metrics
func (s *Service[K, V]) recordOperation(operation metrics.Operation, result metrics.Result, duration time.Duration) {
	if err := s.metricsExporter.RecordOperation(operation, result, duration, s.metricsLabels); err != nil {
		s.logger.Debug("Failed to record operation", zap.Error(err))
	}
}
