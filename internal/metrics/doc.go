/*
Package metrics collects Prometheus metrics and latency quantiles for the
storage manager.

# Overview

A Collector owns a private Prometheus registry, so several collectors can live
in one process (tests create one each). Every recording method is safe on a
nil *Collector, which lets components take an optional collector without
branching.

	┌─────────────┐
	│  Collector  │
	└──────┬──────┘
	       │
	   ┌───┴──────────────────────────────┐
	   │                │                 │
	┌──▼─────────┐ ┌────▼───────────┐ ┌───▼─────────────┐
	│ Prometheus │ │ LatencyTracker │ │ HTTP endpoints  │
	│  Registry  │ │  (DDSketch)    │ │  /metrics       │
	└────────────┘ └────────────────┘ │  /health        │
	                                  │  /debug/latency │
	                                  └─────────────────┘

# Metrics

All names carry the configured namespace (storagemgr by default).

	cache_hits_total                      ContainsKey found a resident file
	cache_misses_total                    ContainsKey required a fill
	cache_evictions_total                 entries removed by sweeps
	cache_evicted_bytes_total             bytes removed by sweeps
	cache_entries                         indexed entries
	cache_usage_percent                   used space of the cache filesystem
	cache_sweep_duration_seconds          sweep duration
	storage_operations_total              backend, operation, status
	storage_operation_duration_seconds    backend, operation
	lock_wait_seconds                     time to acquire a download lock
	lock_timeouts_total                   locks given up after max cycles

The status label is success, not_found or error. Missing files are an
expected outcome of exists and download probes and are kept apart from
failures.

# Latency quantiles

ObserveOperation also feeds a LatencyTracker keyed "<backend>.<operation>".
Histograms answer "how many requests were slower than X"; the sketches give
p50, p90 and p99 with a bounded relative error for the shutdown summary and
the /debug/latency endpoint.

	stats := collector.Latency().Stats("S3.download")
	fmt.Println(stats)
	//   S3.download (n=42): min=11.20ms p50=35.07ms p90=88.91ms p99=140.33ms max=151.02ms

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Port:      9090,
		Path:      "/metrics",
		Namespace: "storagemgr",
	})
	if err != nil {
		return err
	}
	if err := collector.Start(ctx, logger); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

A Port of zero records metrics without serving them.
*/
package metrics
