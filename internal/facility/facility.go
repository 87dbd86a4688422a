// Package facility bundles the storage provider, file cache, download lock
// and metrics of one process. Request handlers receive a *Facility instead of
// reaching for package-level state.
package facility

import (
	"context"
	"log/slog"
	"time"

	"github.com/objectfs/storagemgr/internal/cache"
	"github.com/objectfs/storagemgr/internal/config"
	"github.com/objectfs/storagemgr/internal/lock"
	"github.com/objectfs/storagemgr/internal/metrics"
	"github.com/objectfs/storagemgr/internal/provider"
	"github.com/objectfs/storagemgr/internal/storage"
	"github.com/objectfs/storagemgr/internal/storage/s3"
	"github.com/objectfs/storagemgr/pkg/errors"
	"github.com/objectfs/storagemgr/pkg/pathconv"
	"github.com/objectfs/storagemgr/pkg/utils"
)

// Facility is the explicitly constructed process context.
type Facility struct {
	Provider *provider.Provider
	Cache    *cache.Cache
	Lock     *lock.DownloadLock
	Metrics  *metrics.Collector

	logger *slog.Logger
}

type options struct {
	collector *metrics.Collector
	objectAPI s3.ObjectAPI
	usage     cache.UsageFunc
}

// Option configures New.
type Option func(*options)

// WithCollector uses c instead of a collector built from the configuration.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithObjectAPI routes S3 backends to api.
func WithObjectAPI(api s3.ObjectAPI) Option {
	return func(o *options) { o.objectAPI = api }
}

// WithCacheUsage replaces the statfs probe of the cache filesystem.
func WithCacheUsage(fn cache.UsageFunc) Option {
	return func(o *options) { o.usage = fn }
}

// New builds every component from cfg and rebuilds the cache index. It
// returns only once the recovery scan has finished.
func New(ctx context.Context, cfg *config.Configuration, logger *slog.Logger, opts ...Option) (*Facility, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	collector := o.collector
	if collector == nil {
		mc := metrics.DefaultConfig()
		mc.Port = cfg.Global.MetricsPort
		var err error
		if collector, err = metrics.NewCollector(mc); err != nil {
			return nil, errors.NewError(errors.ErrCodeInternalError, "failed to create metrics collector").WithCause(err)
		}
	}

	var providerOpts []provider.Option
	if o.objectAPI != nil {
		providerOpts = append(providerOpts, provider.WithObjectAPI(o.objectAPI))
	}
	p, err := provider.New(ctx, cfg, logger, collector, providerOpts...)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(ctx, cache.Config{
		Path:                 p.CachePath(),
		MaximumUsagePercent:  cfg.Cache.MaximumUsagePercent,
		ExpectedUsagePercent: cfg.Cache.ExpectedUsagePercent,
		Usage:                o.usage,
	}, logger, collector)
	if err != nil {
		return nil, err
	}
	if _, err := c.Recover(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	return &Facility{
		Provider: p,
		Cache:    c,
		Lock: lock.New(cfg.Lock.FileCheckWaitTime, cfg.Lock.MaxFileWaitCycles,
			lock.WithLogger(logger), lock.WithMetrics(collector)),
		Metrics: collector,
		logger:  utils.Component(logger, "facility"),
	}, nil
}

// CachePathFor returns where the file at absPath is kept in the cache.
func (f *Facility) CachePathFor(absPath string) (string, error) {
	rel := f.Provider.RelativePath(absPath)
	local, err := pathconv.Join(f.Provider.CachePath(), rel)
	if err != nil || local == f.Provider.CachePath() {
		return "", errors.NewError(errors.ErrCodePathInvalid, "path has no cache location").
			WithPath(absPath).
			WithComponent("facility")
	}
	return local, nil
}

// FetchToCache makes the file at absPath, a backend path or s3:// URI,
// resident in the cache and returns its local path. Concurrent calls for the
// same file download it once.
func (f *Facility) FetchToCache(ctx context.Context, absPath string) (string, error) {
	local, err := f.CachePathFor(absPath)
	if err != nil {
		return "", err
	}

	st, err := f.Provider.StorageFor(ctx, absPath)
	if err != nil {
		return "", err
	}

	err = f.Lock.Do(ctx, local, func() error {
		if f.Cache.ContainsKey(local) {
			return nil
		}
		if st.Root() == f.Provider.CachePath() {
			return errors.NewError(errors.ErrCodeFileNotFound, "file is not in the cache").
				WithPath(local).
				WithComponent("facility")
		}

		start := time.Now()
		if err := st.Download(ctx, st.File(st.RelativePath(absPath)), local); err != nil {
			return err
		}
		if err := f.Cache.Put(local); err != nil {
			return err
		}
		f.logger.Debug("filled cache", "source", absPath, "path", local, "duration", time.Since(start))
		return nil
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

// Ingest uploads a staged file from the source path to the default backend
// under the same relative path.
func (f *Facility) Ingest(ctx context.Context, sourceFile string) (storage.File, error) {
	rel := f.Provider.RelativePath(sourceFile)
	return f.Provider.DefaultStorage().Upload(ctx, sourceFile, rel)
}

// CreateStorageFile writes content to rel on the default backend.
func (f *Facility) CreateStorageFile(ctx context.Context, rel string, content []byte) (storage.File, error) {
	return f.Provider.CreateStorageFile(ctx, rel, content)
}

// RelativePath converts an absolute path or s3:// URI to its relative path.
func (f *Facility) RelativePath(absPath string) string {
	return f.Provider.RelativePath(absPath)
}

// StorageFor resolves the backend of an absolute path or s3:// URI.
func (f *Facility) StorageFor(ctx context.Context, absPath string) (storage.Storage, error) {
	return f.Provider.StorageFor(ctx, absPath)
}

// Close stops the eviction worker and releases the cache directory.
func (f *Facility) Close() error {
	return f.Cache.Close()
}
