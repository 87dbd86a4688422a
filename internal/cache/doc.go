/*
Package cache keeps local copies of backend files on disk and evicts the least
recently accessed ones when the cache filesystem fills up.

# Layout

The cache directory mirrors the relative paths of the backend. Every cached
file has one sidecar next to it holding its last access time:

	<root>/
	├── .storagemgr.lock            process lock (hidden, never indexed)
	└── products/
	    ├── p1.zip                  cached file
	    ├── accessed-p1.zip         2026-10-18T09:12:44.123456789Z
	    └── temporary-p2.zip        fill in progress, never indexed

A path moves through four states:

	absent ──write──▶ incomplete ──rename+Put──▶ ready ──Remove/evict──▶ absent
	                 (temporary-*)              (indexed, sidecar)

Fills are written to TemporaryPath(path) and renamed into place before Put.
Anything still carrying the temporary prefix is deleted by Put or Recover.

# Eviction

Put of a new entry triggers the single eviction worker and returns. A sweep
measures the filesystem through Config.Usage (statfs by default) and does
nothing below MaximumUsagePercent. Above it, entries are sorted by access
time and removed oldest first until

	(usage - ExpectedUsagePercent) * total / 100

bytes have been freed. If usage is still at or above the maximum afterwards
the sweep logs a warning and reports Exhausted; the cache keeps serving.

# Recovery

Recover walks the tree at startup and rebuilds the index. Access times come
from the sidecars, so recency survives restarts. Temporary files, sidecars
whose file is gone and empty directories are deleted along the way.

# Usage

	c, err := cache.New(ctx, cache.Config{
		Path:                 "/data/cache",
		MaximumUsagePercent:  95,
		ExpectedUsagePercent: 80,
	}, logger, collector)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.Recover(ctx); err != nil {
		return err
	}

	if !c.ContainsKey(path) {
		// download to c.TemporaryPath(path), rename, then:
		_ = c.Put(path)
	}

A cache directory can be owned by one process at a time; New fails if
another process holds the lock file.
*/
package cache
