package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/objectfs/storagemgr/pkg/errors"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Namespace != "storagemgr" {
			t.Errorf("default namespace = %q, want storagemgr", collector.config.Namespace)
		}
		if collector.registry == nil {
			t.Error("collector.registry is nil")
		}
		if collector.Latency() == nil {
			t.Error("latency tracker is nil")
		}
	})

	t.Run("collectors are isolated per registry", func(t *testing.T) {
		a, err := NewCollector(nil)
		if err != nil {
			t.Fatal(err)
		}
		b, err := NewCollector(nil)
		if err != nil {
			t.Fatal(err)
		}
		a.CacheHit()
		if got := testutil.ToFloat64(b.cacheHits); got != 0 {
			t.Errorf("second collector saw %v hits", got)
		}
	})
}

func TestCollector_CacheMetrics(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}

	c.CacheHit()
	c.CacheHit()
	c.CacheMiss()
	c.CacheEviction(1024)
	c.SetCacheEntries(7)
	c.SetCacheUsage(91.5)

	checks := map[string]struct {
		got  float64
		want float64
	}{
		"hits":          {testutil.ToFloat64(c.cacheHits), 2},
		"misses":        {testutil.ToFloat64(c.cacheMisses), 1},
		"evictions":     {testutil.ToFloat64(c.cacheEvictions), 1},
		"evicted bytes": {testutil.ToFloat64(c.evictedBytes), 1024},
		"entries":       {testutil.ToFloat64(c.cacheEntries), 7},
		"usage":         {testutil.ToFloat64(c.cacheUsage), 91.5},
	}
	for name, chk := range checks {
		if chk.got != chk.want {
			t.Errorf("%s = %v, want %v", name, chk.got, chk.want)
		}
	}
}

func TestCollector_ObserveOperation(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}

	c.ObserveOperation("S3", "download", 20*time.Millisecond, nil)
	c.ObserveOperation("S3", "download", 40*time.Millisecond, errors.NewError(errors.ErrCodeObjectNotFound, "x"))
	c.ObserveOperation("POSIX", "create", time.Millisecond, errors.NewError(errors.ErrCodeDiskFull, "x"))

	tests := []struct {
		labels []string
		want   float64
	}{
		{[]string{"S3", "download", "success"}, 1},
		{[]string{"S3", "download", "not_found"}, 1},
		{[]string{"POSIX", "create", "error"}, 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(c.operationCounter.WithLabelValues(tt.labels...))
		if got != tt.want {
			t.Errorf("operations%v = %v, want %v", tt.labels, got, tt.want)
		}
	}

	stats, err := c.Latency().Stats("S3.download")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Count != 2 {
		t.Errorf("latency count = %d, want 2", stats.Count)
	}
}

func TestCollector_LockMetrics(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}

	c.ObserveLockWait(10 * time.Millisecond)
	c.LockTimeout()

	if got := testutil.ToFloat64(c.lockTimeouts); got != 1 {
		t.Errorf("lock timeouts = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.lockWait); n != 1 {
		t.Errorf("lock wait series = %d, want 1", n)
	}
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector

	c.CacheHit()
	c.CacheMiss()
	c.CacheEviction(1)
	c.SetCacheEntries(1)
	c.SetCacheUsage(1)
	c.ObserveSweep(time.Millisecond)
	c.ObserveOperation("S3", "list", time.Millisecond, nil)
	c.ObserveLockWait(time.Millisecond)
	c.LockTimeout()

	if c.Registry() != nil || c.Latency() != nil {
		t.Error("nil collector should expose no registry or tracker")
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on nil collector = %v", err)
	}
}

func TestCollector_Handler(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}
	c.CacheMiss()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "storagemgr_cache_misses_total 1") {
		t.Errorf("metrics output missing cache misses:\n%s", body)
	}
}

func TestLatencyTracker(t *testing.T) {
	lt := NewLatencyTracker(0.01)
	for i := 1; i <= 100; i++ {
		lt.Record("op", time.Duration(i)*time.Millisecond)
	}

	p50, err := lt.Quantile("op", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if p50 < 48 || p50 > 52 {
		t.Errorf("p50 = %.2f, want ~50", p50)
	}

	if _, err := lt.Quantile("missing", 0.5); err == nil {
		t.Error("expected error for unknown operation")
	}

	lt.Record("another", time.Millisecond)
	all := lt.AllStats()
	if len(all) != 2 || all[0].Operation != "another" {
		t.Errorf("AllStats() = %+v", all)
	}
	if !strings.Contains(lt.Summary(), "op (n=100)") {
		t.Errorf("Summary() = %q", lt.Summary())
	}

	var nilTracker *LatencyTracker
	nilTracker.Record("x", time.Second)
	if nilTracker.AllStats() != nil {
		t.Error("nil tracker should return no stats")
	}
}
