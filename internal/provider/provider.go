// Package provider resolves paths to storage backends. It owns the default
// backend, the configured base paths and one shared S3 client.
package provider

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/objectfs/storagemgr/internal/config"
	"github.com/objectfs/storagemgr/internal/metrics"
	"github.com/objectfs/storagemgr/internal/storage"
	"github.com/objectfs/storagemgr/internal/storage/posix"
	"github.com/objectfs/storagemgr/internal/storage/s3"
	"github.com/objectfs/storagemgr/pkg/errors"
	"github.com/objectfs/storagemgr/pkg/pathconv"
	"github.com/objectfs/storagemgr/pkg/utils"
)

// Provider builds and caches storage backends.
type Provider struct {
	mu             sync.RWMutex
	defaultStorage storage.Storage
	backends       map[string]storage.Storage
	s3Buckets      int

	backendPath string
	sourcePath  string
	cachePath   string
	converter   *pathconv.Converter

	s3Config      *s3.Config
	defaultBucket string
	maxBuckets    int

	clientOnce sync.Once
	client     *awss3.Client
	clientErr  error
	objectAPI  s3.ObjectAPI

	observer storage.Observer
	logger   *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithObjectAPI makes S3 backends use api instead of a client built from the
// configuration.
func WithObjectAPI(api s3.ObjectAPI) Option {
	return func(p *Provider) {
		p.objectAPI = api
	}
}

// New creates the provider, verifies the configured roots and builds the
// default backend. Any failure here is a configuration error.
func New(ctx context.Context, cfg *config.Configuration, logger *slog.Logger, collector *metrics.Collector, opts ...Option) (*Provider, error) {
	if cfg == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "configuration is required").WithComponent("provider")
	}
	typ, err := storage.ParseType(cfg.Storage.DefaultStorageType)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		backends:      make(map[string]storage.Storage),
		s3Config:      s3ConfigFrom(cfg),
		defaultBucket: cfg.Storage.S3.DefaultBucket,
		maxBuckets:    cfg.Storage.S3.MaxNumberOfBuckets,
		logger:        utils.Component(logger, "provider"),
	}
	if collector != nil {
		p.observer = collector
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.sourcePath, err = absDir(cfg.Storage.SourcePath, "source_path"); err != nil {
		return nil, err
	}
	if p.cachePath, err = absDir(cfg.Storage.CachePath, "cache_path"); err != nil {
		return nil, err
	}
	if cfg.Storage.BackendBasePath != "" {
		if p.backendPath, err = filepath.Abs(cfg.Storage.BackendBasePath); err != nil {
			return nil, errors.NewError(errors.ErrCodePathInvalid, "invalid backend base path").
				WithPath(cfg.Storage.BackendBasePath).WithCause(err)
		}
	}
	p.converter = pathconv.New(p.backendPath, p.sourcePath, p.cachePath)

	st, err := p.Storage(ctx, typ, "")
	if err != nil {
		return nil, err
	}
	if typ == storage.TypeS3 {
		if checker, ok := storage.Unwrap(st).(interface{ Check(context.Context) error }); ok {
			if err := checker.Check(ctx); err != nil {
				return nil, err
			}
		}
	}
	p.defaultStorage = st

	p.logger.Info("storage provider ready",
		"default_storage", typ,
		"root", st.Root(),
		"source_path", p.sourcePath,
		"cache_path", p.cachePath)
	return p, nil
}

// absDir resolves dir and makes sure it exists and is writable.
func absDir(dir, field string) (string, error) {
	if dir == "" {
		return "", errors.Newf(errors.ErrCodeMissingConfig, "%s must be set", field).WithComponent("provider")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.NewError(errors.ErrCodePathInvalid, "invalid "+field).WithPath(dir).WithCause(err)
	}
	if err := posix.EnsureWritableDir(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func s3ConfigFrom(cfg *config.Configuration) *s3.Config {
	c := cfg.Storage.S3
	return &s3.Config{
		Region:             c.Region,
		Endpoint:           c.Endpoint,
		AccessKey:          c.AccessKey,
		SecretAccessKey:    c.SecretAccessKey,
		ForcePathStyle:     c.ForcePathStyle,
		UseTransporter:     c.UseTransporter,
		MultipartThreshold: c.MultipartThreshold,
		UploadConcurrency:  c.UploadConcurrency,
		Retry:              cfg.Storage.Retry,
	}
}

// Storage returns the backend of typ rooted at root, a directory for POSIX
// or a bucket for S3. An empty root selects the configured one.
func (p *Provider) Storage(ctx context.Context, typ storage.Type, root string) (storage.Storage, error) {
	switch typ {
	case storage.TypePOSIX:
		if root == "" {
			root = p.backendPath
		}
		if root == "" {
			return nil, errors.NewError(errors.ErrCodeMissingConfig, "backend_base_path must be set").
				WithComponent("provider")
		}
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	case storage.TypeS3:
		if root == "" {
			root = p.defaultBucket
		}
		if root == "" {
			return nil, errors.NewError(errors.ErrCodeMissingConfig, "s3.default_bucket must be set").
				WithComponent("provider")
		}
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownStorageType, "unknown storage type: %q", typ).
			WithComponent("provider")
	}

	key := string(typ) + ":" + root
	p.mu.RLock()
	st, ok := p.backends[key]
	p.mu.RUnlock()
	if ok {
		return st, nil
	}

	st, err := p.build(ctx, typ, root)
	if err != nil {
		return nil, err
	}
	st = storage.Instrument(st, p.observer)

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.backends[key]; ok {
		return existing, nil
	}
	if typ == storage.TypeS3 {
		if p.s3Buckets >= p.maxBuckets {
			p.logger.Debug("bucket limit reached, backend not retained", "bucket", root, "limit", p.maxBuckets)
			return st, nil
		}
		p.s3Buckets++
	}
	p.backends[key] = st
	return st, nil
}

func (p *Provider) build(ctx context.Context, typ storage.Type, root string) (storage.Storage, error) {
	if typ == storage.TypePOSIX {
		return posix.New(root, p.logger)
	}

	if p.objectAPI != nil {
		return s3.NewBackendWithAPI(p.objectAPI, root, p.s3Config, p.logger)
	}
	client, err := p.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewBackend(client, root, p.s3Config, p.logger)
}

// s3Client builds the shared client on first use.
func (p *Provider) s3Client(ctx context.Context) (*awss3.Client, error) {
	p.clientOnce.Do(func() {
		p.client, p.clientErr = s3.NewClient(ctx, p.s3Config)
	})
	return p.client, p.clientErr
}

// StorageFor resolves an absolute path or s3:// URI to its backend. POSIX
// paths must lie under a configured base path.
func (p *Provider) StorageFor(ctx context.Context, absPath string) (storage.Storage, error) {
	if pathconv.IsS3(absPath) {
		bucket, _ := pathconv.SplitBucket(absPath)
		if bucket == "" {
			return nil, errors.NewError(errors.ErrCodePathInvalid, "s3 path without bucket").
				WithPath(absPath).WithComponent("provider")
		}
		return p.Storage(ctx, storage.TypeS3, bucket)
	}

	base, ok := p.converter.BasePathOf(absPath)
	if !ok {
		return nil, errors.NewError(errors.ErrCodePathInvalid, "path is not under a configured base path").
			WithPath(absPath).WithComponent("provider")
	}
	return p.Storage(ctx, storage.TypePOSIX, base)
}

// StorageFile returns the file at rel on st.
func (p *Provider) StorageFile(st storage.Storage, rel string) storage.File {
	return st.File(rel)
}

// RelativePath converts an absolute path or s3:// URI to a backend-relative
// path.
func (p *Provider) RelativePath(absPath string) string {
	return p.converter.RelativePath(absPath)
}

// CreateStorageFile writes content to rel on the default backend.
func (p *Provider) CreateStorageFile(ctx context.Context, rel string, content []byte) (storage.File, error) {
	return p.DefaultStorage().CreateStorageFile(ctx, rel, content)
}

// SetDefaultStorage switches the default backend to typ with its configured
// root. It changes behavior for every later default-backend call and is
// meant for tests and administration.
func (p *Provider) SetDefaultStorage(ctx context.Context, typ storage.Type) (storage.Storage, error) {
	st, err := p.Storage(ctx, typ, "")
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.defaultStorage = st
	p.mu.Unlock()

	p.logger.Info("default storage changed", "type", typ, "root", st.Root())
	return st, nil
}

// DefaultStorage returns the active default backend.
func (p *Provider) DefaultStorage() storage.Storage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultStorage
}

// BasePaths returns the configured base paths in match order.
func (p *Provider) BasePaths() []string { return p.converter.BasePaths() }

func (p *Provider) BackendPath() string { return p.backendPath }

func (p *Provider) SourcePath() string { return p.sourcePath }

func (p *Provider) CachePath() string { return p.cachePath }

func (p *Provider) Converter() *pathconv.Converter { return p.converter }
