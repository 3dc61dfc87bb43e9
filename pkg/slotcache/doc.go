// Package slotcache memoizes an expensive, deterministic computation for
// many concurrent callers by caching the single most recent (input, result)
// pair.
//
// # Overview
//
// A Service answers Serve(ctx, key) from its cached slot when key equals the
// last committed input, and otherwise runs the computation and commits the
// new pair. The cached result always belongs to the cached input: key and
// value are replaced together in one critical section, and nothing reads
// either of them outside that lock.
//
// # Key Features
//
//   - One mutex guards the cached pair and the hit/miss counters together
//   - The computation never runs while the lock is held
//   - Values are copied in at commit and out at hit when a clone function is set
//   - Computation errors are returned unchanged and never cached
//   - Optional coalescing of concurrent misses for the same key
//   - Optional JSON + gzip/deflate packing of the cached value
//   - Hooks and zap-based logging hooks for observability
//   - Prometheus and OpenTelemetry metrics through pkg/metrics
//
// # Basic Usage
//
//	svc, err := slotcache.New(
//	    slotcache.FromFunc(factorize),
//	    slotcache.WithClone[int64](slotcache.CloneSlice[int64]),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	factors, err := svc.Serve(ctx, 360)
//	fmt.Println(factors, svc.Stats())
//
// # Concurrency
//
// Concurrent misses for the same key each run the computation unless
// Config.CoalesceMisses is set; every caller still gets a correct result and
// the last commit wins. Each Serve counts exactly one hit or one miss, so
// Stats().Total() always equals the number of completed serves.
//
// # Logging
//
//	logger, _ := zap.NewProduction()
//	hooks := slotcache.NewLoggingHooks[int64, []int64](logger, nil)
//
//	config := slotcache.NewDefaultConfig().
//	    WithName("factorizer").
//	    WithLogger(logger)
//
//	svc, err := slotcache.NewWithConfig(config, compute, slotcache.WithHooks(hooks))
//
// # Metrics
//
//	exporter, _ := metrics.NewPrometheusExporter(metrics.NewDefaultConfig(), nil)
//	config := slotcache.NewDefaultConfig().WithMetricsExporter(exporter, "factorizer")
package slotcache
