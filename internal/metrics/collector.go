package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/storagemgr/pkg/errors"
	"github.com/objectfs/storagemgr/pkg/utils"
)

// Collector owns the storage manager's Prometheus metrics. A nil *Collector
// is valid and records nothing.
type Collector struct {
	config   *Config
	registry *prometheus.Registry
	latency  *LatencyTracker

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	evictedBytes   prometheus.Counter
	cacheEntries   prometheus.Gauge
	cacheUsage     prometheus.Gauge
	sweepDuration  prometheus.Histogram

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	lockWait     prometheus.Histogram
	lockTimeouts prometheus.Counter

	server *http.Server
}

// Config represents metrics configuration
type Config struct {
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`

	// RelativeAccuracy of the latency quantile sketches, e.g. 0.01 for 1%.
	RelativeAccuracy float64 `yaml:"relative_accuracy"`
}

// DefaultConfig returns the default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Port:             9090,
		Path:             "/metrics",
		Namespace:        "storagemgr",
		RelativeAccuracy: 0.01,
	}
}

// NewCollector creates a new metrics collector on its own registry
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.RelativeAccuracy <= 0 || config.RelativeAccuracy >= 1 {
		config.RelativeAccuracy = 0.01
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
		latency:  NewLatencyTracker(config.RelativeAccuracy),
	}
	c.initMetrics()

	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Latency returns the quantile tracker fed by ObserveOperation
func (c *Collector) Latency() *LatencyTracker {
	if c == nil {
		return nil
	}
	return c.latency
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start serves the metrics and health endpoints until Stop is called
func (c *Collector) Start(ctx context.Context, logger *slog.Logger) error {
	if c == nil || c.config.Port <= 0 {
		return nil
	}
	logger = utils.Component(logger, "metrics")

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/latency", c.latencyHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	logger.Info("serving metrics", "addr", c.server.Addr, "path", c.config.Path)
	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// CacheHit records a cache hit
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// CacheMiss records a cache miss
func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// CacheEviction records one evicted entry of size bytes
func (c *Collector) CacheEviction(size int64) {
	if c == nil {
		return
	}
	c.cacheEvictions.Inc()
	if size > 0 {
		c.evictedBytes.Add(float64(size))
	}
}

// SetCacheEntries sets the number of indexed cache entries
func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}

// SetCacheUsage sets the used percentage of the cache filesystem
func (c *Collector) SetCacheUsage(percent float64) {
	if c == nil {
		return
	}
	c.cacheUsage.Set(percent)
}

// ObserveSweep records the duration of one eviction sweep
func (c *Collector) ObserveSweep(d time.Duration) {
	if c == nil {
		return
	}
	c.sweepDuration.Observe(d.Seconds())
	c.latency.Record("cache.sweep", d)
}

// ObserveOperation records one backend operation. It satisfies
// storage.Observer.
func (c *Collector) ObserveOperation(backend, operation string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.operationCounter.With(prometheus.Labels{
		"backend":   backend,
		"operation": operation,
		"status":    status(err),
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"backend":   backend,
		"operation": operation,
	}).Observe(elapsed.Seconds())
	c.latency.Record(backend+"."+operation, elapsed)
}

// ObserveLockWait records how long a caller waited for a download lock
func (c *Collector) ObserveLockWait(d time.Duration) {
	if c == nil {
		return
	}
	c.lockWait.Observe(d.Seconds())
}

// LockTimeout records a lock that could not be acquired in time
func (c *Collector) LockTimeout() {
	if c == nil {
		return
	}
	c.lockTimeouts.Inc()
}

// status maps an operation result to a low-cardinality label.
func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.HasCode(err, errors.ErrCodeObjectNotFound), errors.HasCode(err, errors.ErrCodeFileNotFound):
		return "not_found"
	case errors.HasCode(err, errors.ErrCodeOperationCanceled):
		return "canceled"
	default:
		return "error"
	}
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace

	c.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "cache_hits_total",
		Help:      "Total number of cache lookups that found a resident file",
	})
	c.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "cache_misses_total",
		Help:      "Total number of cache lookups that required a fill",
	})
	c.cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "cache_evictions_total",
		Help:      "Total number of entries removed by eviction sweeps",
	})
	c.evictedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "cache_evicted_bytes_total",
		Help:      "Total bytes removed by eviction sweeps",
	})
	c.cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "cache_entries",
		Help:      "Number of indexed cache entries",
	})
	c.cacheUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "cache_usage_percent",
		Help:      "Used space of the cache filesystem in percent",
	})
	c.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "cache_sweep_duration_seconds",
		Help:      "Duration of eviction sweeps in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
	})

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "storage_operations_total",
			Help:      "Total number of storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)
	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "storage_operation_duration_seconds",
			Help:      "Duration of storage backend operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"backend", "operation"},
	)

	c.lockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for download locks",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	c.lockTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "lock_timeouts_total",
		Help:      "Total number of download locks that timed out",
	})
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.cacheHits,
		c.cacheMisses,
		c.cacheEvictions,
		c.evictedBytes,
		c.cacheEntries,
		c.cacheUsage,
		c.sweepDuration,
		c.operationCounter,
		c.operationDuration,
		c.lockWait,
		c.lockTimeouts,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"storagemgr"}`))
}

func (c *Collector) latencyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintln(w, "Operation latency (ms)")
	_, _ = fmt.Fprint(w, c.latency.Summary())
}
