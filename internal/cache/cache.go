package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/objectfs/storagemgr/internal/metrics"
	"github.com/objectfs/storagemgr/internal/storage"
	"github.com/objectfs/storagemgr/pkg/errors"
	"github.com/objectfs/storagemgr/pkg/pathconv"
	"github.com/objectfs/storagemgr/pkg/utils"
)

// LockFileName is the process lock kept in the cache root. Hidden files are
// never indexed.
const LockFileName = ".storagemgr.lock"

// Usage is the space accounting of the cache filesystem.
type Usage struct {
	Used  uint64
	Total uint64
}

// Percent returns Used as a percentage of Total.
func (u Usage) Percent() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Used) * 100 / float64(u.Total)
}

// UsageFunc measures the filesystem holding path.
type UsageFunc func(path string) (Usage, error)

// Config represents file cache configuration
type Config struct {
	// Path is the cache root. It is created if missing.
	Path string `yaml:"path"`

	// MaximumUsagePercent of the filesystem triggers an eviction sweep.
	MaximumUsagePercent float64 `yaml:"maximum_usage_percent"`

	// ExpectedUsagePercent is the target a sweep evicts down to.
	ExpectedUsagePercent float64 `yaml:"expected_usage_percent"`

	// Usage defaults to DiskUsage.
	Usage UsageFunc `yaml:"-"`
}

// FileInfo is the cache metadata of one resident file.
type FileInfo struct {
	Path       string
	AccessedAt time.Time
	Size       int64
}

// Cache is a disk cache of backend files with least-recently-used eviction.
// Recency survives restarts through an accessed-<name> sidecar next to every
// cached file.
type Cache struct {
	mu    sync.Mutex
	root  string
	index map[string]*FileInfo

	config  Config
	usage   UsageFunc
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	fileLock *flock.Flock

	sweepMu sync.Mutex
	trigger chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	closed  bool
}

// New opens the cache rooted at cfg.Path and starts its eviction worker.
// The index starts empty; call Recover to rebuild it from disk. Cancelling
// ctx after New returns does not stop the worker; only Close does.
func New(ctx context.Context, cfg Config, logger *slog.Logger, collector *metrics.Collector) (*Cache, error) {
	if cfg.Path == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "cache path is required").WithComponent("cache")
	}
	if cfg.MaximumUsagePercent <= 0 || cfg.MaximumUsagePercent > 100 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "maximum cache usage must be in (0, 100], got %v", cfg.MaximumUsagePercent).
			WithComponent("cache")
	}
	if cfg.ExpectedUsagePercent < 0 || cfg.ExpectedUsagePercent >= cfg.MaximumUsagePercent {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "expected cache usage must be in [0, %v), got %v",
			cfg.MaximumUsagePercent, cfg.ExpectedUsagePercent).WithComponent("cache")
	}

	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodePathInvalid, "invalid cache path").WithPath(cfg.Path).WithCause(err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.FromOSError("mkdir", root, err, true).WithComponent("cache")
	}

	fileLock := flock.New(filepath.Join(root, LockFileName))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, errors.FromOSError("flock", fileLock.Path(), err, true).WithComponent("cache")
	}
	if !locked {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "cache directory is in use by another process").
			WithPath(root).
			WithComponent("cache")
	}

	usage := cfg.Usage
	if usage == nil {
		usage = DiskUsage
	}

	c := &Cache{
		root:     root,
		index:    make(map[string]*FileInfo),
		config:   cfg,
		usage:    usage,
		logger:   utils.Component(logger, "cache"),
		metrics:  collector,
		now:      time.Now,
		fileLock: fileLock,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}

	c.wg.Add(1)
	go c.evictLoop(context.WithoutCancel(ctx))

	return c, nil
}

// Root returns the absolute cache directory.
func (c *Cache) Root() string {
	return c.root
}

// TemporaryPath returns the name a fill of path must be written to before
// it is renamed into place and Put.
func (c *Cache) TemporaryPath(path string) string {
	return storage.TemporaryName(path)
}

// Put indexes the file at path and stamps its sidecar with the current time.
// Paths outside the cache root are ignored. A stale temporary file at the
// same location is deleted. Putting an indexed path whose file is gone drops
// the entry and returns FILE_NOT_FOUND.
func (c *Cache) Put(path string) error {
	path, ok := c.resolve(path)
	if !ok {
		return nil
	}
	name := filepath.Base(path)
	if isReserved(name) {
		return errors.NewError(errors.ErrCodePathInvalid, "reserved cache file name").
			WithPath(path).
			WithOperation("put").
			WithComponent("cache")
	}

	tmp := storage.TemporaryName(path)
	if err := os.Remove(tmp); err == nil {
		c.logger.Debug("removed incomplete file", "path", tmp)
	}

	c.mu.Lock()
	_, indexed := c.index[path]
	err := c.touchLocked(path)
	if err != nil && indexed && errors.HasCode(err, errors.ErrCodeFileNotFound) {
		c.logger.Debug("dropping entry without file", "path", path)
		_ = c.removeLocked(path)
	}
	entries := len(c.index)
	c.mu.Unlock()

	c.metrics.SetCacheEntries(entries)
	if err != nil {
		return err
	}

	if !indexed {
		c.Trigger()
	}
	return nil
}

// ContainsKey reports whether path is cached. A hit refreshes its recency.
// An entry whose file disappeared is dropped and reported as a miss.
func (c *Cache) ContainsKey(path string) bool {
	path, ok := c.resolve(path)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, indexed := c.index[path]; !indexed {
		c.metrics.CacheMiss()
		return false
	}

	if _, err := os.Stat(path); err != nil {
		c.logger.Debug("dropping entry without file", "path", path, "error", err)
		_ = c.removeLocked(path)
		c.metrics.SetCacheEntries(len(c.index))
		c.metrics.CacheMiss()
		return false
	}

	if err := c.touchLocked(path); err != nil {
		c.logger.Warn("failed to refresh cache entry", "path", path, "error", err)
	}
	c.metrics.CacheHit()
	return true
}

// Get returns the metadata of path without refreshing it.
func (c *Cache) Get(path string) (FileInfo, bool) {
	path, ok := c.resolve(path)
	if !ok {
		return FileInfo{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	info, exists := c.index[path]
	if !exists {
		return FileInfo{}, false
	}
	return *info, true
}

// Len returns the number of indexed files.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Entries returns a snapshot of the index.
func (c *Cache) Entries() []FileInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]FileInfo, 0, len(c.index))
	for _, info := range c.index {
		entries = append(entries, *info)
	}
	return entries
}

// Remove deletes path and its sidecar, then prunes directories left empty
// below the cache root.
func (c *Cache) Remove(path string) error {
	path, ok := c.resolve(path)
	if !ok {
		return nil
	}

	c.mu.Lock()
	err := c.removeLocked(path)
	entries := len(c.index)
	c.mu.Unlock()

	c.metrics.SetCacheEntries(entries)
	return err
}

// RemoveAll removes every indexed file. It keeps going after a failure and
// returns the first error.
func (c *Cache) RemoveAll() error {
	var first error
	for _, info := range c.Entries() {
		if err := c.Remove(info.Path); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close stops the eviction worker and releases the cache directory.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stopEviction()
	return c.fileLock.Unlock()
}

// touchLocked writes the sidecar and refreshes the index entry.
func (c *Cache) touchLocked(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return errors.FromOSError("put", path, err, false).WithComponent("cache")
	}
	if st.IsDir() {
		return errors.NewError(errors.ErrCodePathInvalid, "cannot cache a directory").WithPath(path).WithComponent("cache")
	}

	now := c.now().UTC()
	if err := writeSidecar(path, now); err != nil {
		return err
	}
	c.index[path] = &FileInfo{Path: path, AccessedAt: now, Size: st.Size()}
	return nil
}

func (c *Cache) removeLocked(path string) error {
	delete(c.index, path)

	var first error
	for _, p := range []string{path, storage.AccessedName(path)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && first == nil {
			first = errors.FromOSError("remove", p, err, true).WithComponent("cache")
		}
	}
	c.pruneEmptyDirs(filepath.Dir(path))
	return first
}

// pruneEmptyDirs removes dir and its ancestors while they are empty,
// stopping at the cache root.
func (c *Cache) pruneEmptyDirs(dir string) {
	for pathconv.IsWithin(c.root, dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
		c.logger.Debug("removed empty directory", "path", dir)
		dir = filepath.Dir(dir)
	}
}

// resolve cleans path and reports whether it lies under the cache root.
func (c *Cache) resolve(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		return "", false
	}
	path = filepath.Clean(path)
	return path, pathconv.IsWithin(c.root, path)
}

func isReserved(name string) bool {
	return strings.HasPrefix(name, storage.TemporaryPrefix) ||
		strings.HasPrefix(name, storage.AccessedPrefix) ||
		strings.HasPrefix(name, ".")
}
