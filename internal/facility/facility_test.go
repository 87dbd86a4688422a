package facility

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/storagemgr/internal/cache"
	"github.com/objectfs/storagemgr/internal/config"
	"github.com/objectfs/storagemgr/internal/metrics"
	"github.com/objectfs/storagemgr/internal/storage/s3/s3test"
	"github.com/objectfs/storagemgr/pkg/errors"
)

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	root := t.TempDir()
	cfg := config.NewDefault()
	cfg.Storage.BackendBasePath = filepath.Join(root, "backend")
	cfg.Storage.SourcePath = filepath.Join(root, "source")
	cfg.Storage.CachePath = filepath.Join(root, "cache")
	cfg.Storage.S3.DefaultBucket = "products"
	cfg.Storage.Retry.MaxAttempts = 1
	cfg.Lock.FileCheckWaitTime = time.Millisecond
	cfg.Lock.MaxFileWaitCycles = 2000
	return cfg
}

func idleDisk(string) (cache.Usage, error) {
	return cache.Usage{Used: 1, Total: 100}, nil
}

func newFacility(t *testing.T, cfg *config.Configuration, fake *s3test.Fake) *Facility {
	t.Helper()
	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)

	f, err := New(context.Background(), cfg, nil,
		WithCollector(collector),
		WithObjectAPI(fake),
		WithCacheUsage(idleDisk))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// released reports whether path can be locked right away.
func released(t *testing.T, f *Facility, path string) bool {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Lock.Lock(ctx, path); err != nil {
		return false
	}
	f.Lock.Unlock(path)
	return true
}

// operations sums storage_operations_total for backend and operation.
func operations(t *testing.T, c *metrics.Collector, backend, operation string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != "storagemgr_storage_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["backend"] == backend && labels["operation"] == operation {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func TestFetchToCache_Posix(t *testing.T) {
	cfg := testConfig(t)
	f := newFacility(t, cfg, s3test.New())
	ctx := context.Background()

	stored, err := f.CreateStorageFile(ctx, "a/b.txt", []byte("hello"))
	require.NoError(t, err)

	local, err := f.FetchToCache(ctx, stored.FullPath())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Storage.CachePath, "a", "b.txt"), local)

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.FileExists(t, filepath.Join(cfg.Storage.CachePath, "a", "accessed-b.txt"))
	assert.NoFileExists(t, filepath.Join(cfg.Storage.CachePath, "a", "temporary-b.txt"))
	assert.True(t, f.Cache.ContainsKey(local))

	again, err := f.FetchToCache(ctx, stored.FullPath())
	require.NoError(t, err)
	assert.Equal(t, local, again)
	assert.Equal(t, float64(1), operations(t, f.Metrics, "POSIX", "download"), "hit must not download again")
	assert.True(t, released(t, f, local))
}

func TestFetchToCache_S3(t *testing.T) {
	cfg := testConfig(t)
	fake := s3test.New()
	fake.Put("my-bucket", "products/p1.zip", []byte("zipdata"))
	f := newFacility(t, cfg, fake)

	local, err := f.FetchToCache(context.Background(), "s3://my-bucket/products/p1.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Storage.CachePath, "products", "p1.zip"), local)

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(data))
	assert.Equal(t, 1, fake.Calls("GetObject"))
}

func TestFetchToCache_SingleFlight(t *testing.T) {
	cfg := testConfig(t)
	fake := s3test.New()
	fake.Put("products", "big.bin", []byte("0123456789"))
	f := newFacility(t, cfg, fake)

	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = f.FetchToCache(context.Background(), "s3://products/big.bin")
		}(i)
	}
	wg.Wait()

	for i := range paths {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
	assert.Equal(t, 1, fake.Calls("GetObject"), "concurrent fetches of one file download it once")
	assert.Equal(t, 1, f.Cache.Len())
}

func TestFetchToCache_MissingObject(t *testing.T) {
	cfg := testConfig(t)
	f := newFacility(t, cfg, s3test.New())

	_, err := f.FetchToCache(context.Background(), "s3://products/nope.bin")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeObjectNotFound), "got %v", err)

	local := filepath.Join(cfg.Storage.CachePath, "nope.bin")
	assert.NoFileExists(t, local)
	assert.NoFileExists(t, filepath.Join(cfg.Storage.CachePath, "temporary-nope.bin"))
	assert.True(t, released(t, f, local), "lock is released on failure")
	assert.Zero(t, f.Cache.Len())
}

func TestFetchToCache_LockTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lock.MaxFileWaitCycles = 3
	fake := s3test.New()
	fake.Put("products", "x.bin", []byte("x"))
	f := newFacility(t, cfg, fake)

	local := filepath.Join(cfg.Storage.CachePath, "x.bin")
	require.NoError(t, f.Lock.Lock(context.Background(), local))
	defer f.Lock.Unlock(local)

	_, err := f.FetchToCache(context.Background(), "s3://products/x.bin")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLockTimeout))
	assert.True(t, errors.IsRetryable(err))
	assert.Zero(t, fake.Calls("GetObject"))
}

func TestFetchToCache_InvalidPaths(t *testing.T) {
	cfg := testConfig(t)
	f := newFacility(t, cfg, s3test.New())
	ctx := context.Background()

	_, err := f.FetchToCache(ctx, "/not/configured/file.bin")
	assert.True(t, errors.HasCode(err, errors.ErrCodePathInvalid), "got %v", err)

	_, err = f.FetchToCache(ctx, "s3://products")
	assert.True(t, errors.HasCode(err, errors.ErrCodePathInvalid), "got %v", err)

	_, err = f.FetchToCache(ctx, filepath.Join(cfg.Storage.CachePath, "absent.bin"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound), "got %v", err)
}

func TestIngest(t *testing.T) {
	cfg := testConfig(t)
	f := newFacility(t, cfg, s3test.New())

	src := filepath.Join(cfg.Storage.SourcePath, "in", "raw.dat")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
	require.NoError(t, os.WriteFile(src, []byte("raw"), 0644))

	stored, err := f.Ingest(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "in/raw.dat", stored.RelativePath())

	data, err := os.ReadFile(filepath.Join(cfg.Storage.BackendBasePath, "in", "raw.dat"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(data))
}

func TestNew_RecoversCache(t *testing.T) {
	cfg := testConfig(t)
	cached := filepath.Join(cfg.Storage.CachePath, "warm", "w.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(cached), 0755))
	require.NoError(t, os.WriteFile(cached, []byte("w"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.CachePath, "warm", "temporary-z.bin"), nil, 0644))

	f := newFacility(t, cfg, s3test.New())
	assert.Equal(t, 1, f.Cache.Len())
	assert.True(t, f.Cache.ContainsKey(cached))
	assert.NoFileExists(t, filepath.Join(cfg.Storage.CachePath, "warm", "temporary-z.bin"))
}
