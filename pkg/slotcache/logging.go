package slotcache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LoggingConfig defines which service events NewLoggingHooks logs
type LoggingConfig struct {
	// LogHits enables logging of cache hits at Debug
	LogHits bool

	// LogMisses enables logging of cache misses at Info
	LogMisses bool

	// LogCommits enables logging of commits at Debug
	LogCommits bool

	// LogReplacements enables logging of replaced entries at Info
	LogReplacements bool

	// LogErrors enables logging of failed serves at Warn
	LogErrors bool

	// LogSlowComputations enables Warn logging of computations that take at
	// least SlowComputeThreshold
	LogSlowComputations  bool
	SlowComputeThreshold time.Duration

	// IncludeValues determines whether to include values in logs (may be verbose)
	IncludeValues bool

	// MaxValueLength limits the length of values included in logs
	MaxValueLength int
}

// NewDefaultLoggingConfig creates a logging configuration with every event enabled
func NewDefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		LogHits:              true,
		LogMisses:            true,
		LogCommits:           true,
		LogReplacements:      true,
		LogErrors:            true,
		LogSlowComputations:  true,
		SlowComputeThreshold: 100 * time.Millisecond,
		IncludeValues:        false,
		MaxValueLength:       100,
	}
}

// NewLoggingHooks creates hooks that log service events to logger.
// A nil config means NewDefaultLoggingConfig.
func NewLoggingHooks[K comparable, V any](logger *zap.Logger, config *LoggingConfig) *Hooks[K, V] {
	hooks := &Hooks[K, V]{}
	if logger == nil {
		return hooks
	}
	if config == nil {
		config = NewDefaultLoggingConfig()
	}

	slow := func(key K, elapsed time.Duration) {
		if config.LogSlowComputations && elapsed >= config.SlowComputeThreshold {
			logger.Warn("Slow computation",
				zap.Any("key", key),
				zap.String("event", "slow_computation"),
				zap.Duration("elapsed", elapsed),
				zap.Duration("threshold", config.SlowComputeThreshold),
			)
		}
	}

	if config.LogHits {
		hooks.AddOnHit(func(_ context.Context, key K, value V) {
			fields := []zap.Field{zap.Any("key", key), zap.String("event", "cache_hit")}
			if config.IncludeValues {
				fields = append(fields, zap.String("value", truncateValue(fmt.Sprintf("%v", value), config.MaxValueLength)))
			}
			logger.Debug("Cache hit", fields...)
		})
	}

	if config.LogMisses {
		hooks.AddOnMiss(func(_ context.Context, key K) {
			logger.Info("Cache miss", zap.Any("key", key), zap.String("event", "cache_miss"))
		})
	}

	if config.LogCommits || config.LogSlowComputations {
		hooks.AddOnCommit(func(_ context.Context, key K, value V, elapsed time.Duration) {
			if config.LogCommits {
				fields := []zap.Field{
					zap.Any("key", key),
					zap.String("event", "commit"),
					zap.Duration("elapsed", elapsed),
				}
				if config.IncludeValues {
					fields = append(fields, zap.String("value", truncateValue(fmt.Sprintf("%v", value), config.MaxValueLength)))
				}
				logger.Debug("Value committed", fields...)
			}
			slow(key, elapsed)
		})
	}

	if config.LogReplacements {
		hooks.AddOnReplace(func(_ context.Context, evicted, key K, age time.Duration) {
			logger.Info("Cached entry replaced",
				zap.Any("evicted_key", evicted),
				zap.Any("key", key),
				zap.String("event", "cache_replace"),
				zap.Duration("age", age),
			)
		})
	}

	if config.LogErrors || config.LogSlowComputations {
		hooks.AddOnError(func(_ context.Context, key K, err error, elapsed time.Duration) {
			if config.LogErrors {
				logger.Warn("Serve failed",
					zap.Any("key", key),
					zap.String("event", "serve_error"),
					zap.Error(err),
					zap.Duration("elapsed", elapsed),
				)
			}
			slow(key, elapsed)
		})
	}

	return hooks
}

func truncateValue(value string, maxLength int) string {
	if maxLength <= 0 || len(value) <= maxLength {
		return value
	}
	if maxLength <= 3 {
		return value[:maxLength]
	}
	return value[:maxLength-3] + "..."
}
