package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/objectfs/storagemgr/internal/storage"
	"github.com/objectfs/storagemgr/pkg/errors"
)

// RecoveryStats summarizes a Recover scan.
type RecoveryStats struct {
	Indexed        int
	Temporaries    int
	OrphanSidecars int
	EmptyDirs      int
	FreshSidecars  int
}

// Recover rebuilds the index from the cache directory. Files keep the access
// time recorded in their sidecar; a missing or unreadable sidecar is
// recreated with the current time. Temporary files, sidecars without a file
// and empty directories are deleted. Hidden entries are left alone.
func (c *Cache) Recover(ctx context.Context) (RecoveryStats, error) {
	start := time.Now()
	var stats RecoveryStats

	if err := c.scanDir(ctx, c.root, &stats); err != nil {
		return stats, err
	}

	entries := c.Len()
	c.metrics.SetCacheEntries(entries)
	c.logger.Info("cache recovered",
		"root", c.root,
		"entries", entries,
		"indexed", stats.Indexed,
		"temporaries_removed", stats.Temporaries,
		"orphan_sidecars_removed", stats.OrphanSidecars,
		"empty_dirs_removed", stats.EmptyDirs,
		"duration", time.Since(start))

	c.Trigger()
	return stats, nil
}

func (c *Cache) scanDir(ctx context.Context, dir string, stats *RecoveryStats) error {
	if err := ctx.Err(); err != nil {
		return errors.NewError(errors.ErrCodeOperationCanceled, "cache recovery canceled").
			WithPath(dir).
			WithComponent("cache").
			WithCause(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.FromOSError("scan", dir, err, false).WithComponent("cache")
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		switch {
		case entry.IsDir():
			if err := c.scanDir(ctx, path, stats); err != nil {
				return err
			}
			if err := os.Remove(path); err == nil {
				stats.EmptyDirs++
				c.logger.Debug("removed empty directory", "path", path)
			}

		case strings.HasPrefix(name, storage.TemporaryPrefix):
			if err := os.Remove(path); err == nil {
				stats.Temporaries++
				c.logger.Debug("removed incomplete file", "path", path)
			}

		case strings.HasPrefix(name, storage.AccessedPrefix):
			target := filepath.Join(dir, strings.TrimPrefix(name, storage.AccessedPrefix))
			if _, err := os.Stat(target); os.IsNotExist(err) {
				if err := os.Remove(path); err == nil {
					stats.OrphanSidecars++
					c.logger.Debug("removed orphan sidecar", "path", path)
				}
			}

		case entry.Type().IsRegular():
			c.recoverFile(path, stats)
		}
	}
	return nil
}

// recoverFile indexes one cache file without touching a valid sidecar.
func (c *Cache) recoverFile(path string, stats *RecoveryStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, indexed := c.index[path]; indexed {
		return
	}

	st, err := os.Stat(path)
	if err != nil {
		return
	}

	accessedAt, err := readSidecar(path)
	if err != nil {
		accessedAt = c.now().UTC()
		if err := writeSidecar(path, accessedAt); err != nil {
			c.logger.Warn("skipping cache file without sidecar", "path", path, "error", err)
			return
		}
		stats.FreshSidecars++
	}

	c.index[path] = &FileInfo{Path: path, AccessedAt: accessedAt, Size: st.Size()}
	stats.Indexed++
}
