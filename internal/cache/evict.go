package cache

import (
	"context"
	"sort"
	"time"

	"github.com/objectfs/storagemgr/pkg/utils"
)

// SweepResult describes one eviction sweep.
type SweepResult struct {
	UsageBefore float64
	UsageAfter  float64
	Evicted     int
	FreedBytes  int64
	// Exhausted is set when usage stayed at or above the maximum.
	Exhausted bool
}

// Trigger asks the eviction worker for a sweep without waiting for it.
// Triggers that arrive while one is pending collapse into it.
func (c *Cache) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// SweepNow runs one sweep on the calling goroutine.
func (c *Cache) SweepNow() (SweepResult, error) {
	return c.sweep()
}

// evictLoop runs until stopEviction. ctx carries request-scoped values for
// logging only and is never cancelled.
func (c *Cache) evictLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		case <-c.trigger:
			if _, err := c.sweep(); err != nil {
				c.logger.ErrorContext(ctx, "eviction sweep failed", "error", err)
			}
		}
	}
}

func (c *Cache) stopEviction() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// sweep evicts least recently accessed entries until
// (usage - expected) percent of the filesystem has been freed. Entries are
// ordered once at the start; concurrent touches are not re-checked.
func (c *Cache) sweep() (SweepResult, error) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	start := time.Now()
	defer func() { c.metrics.ObserveSweep(time.Since(start)) }()

	usage, err := c.usage(c.root)
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{UsageBefore: usage.Percent(), UsageAfter: usage.Percent()}
	c.metrics.SetCacheUsage(result.UsageBefore)

	if result.UsageBefore < c.config.MaximumUsagePercent {
		return result, nil
	}

	entries := c.Entries()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AccessedAt.Equal(entries[j].AccessedAt) {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].AccessedAt.Before(entries[j].AccessedAt)
	})

	bytesToDelete := (result.UsageBefore - c.config.ExpectedUsagePercent) * float64(usage.Total) / 100
	c.logger.Info("cache usage above maximum, evicting",
		"usage_percent", result.UsageBefore,
		"maximum_percent", c.config.MaximumUsagePercent,
		"to_free", utils.FormatBytes(int64(bytesToDelete)),
		"entries", len(entries))

	for _, entry := range entries {
		if bytesToDelete <= 0 {
			break
		}
		if err := c.Remove(entry.Path); err != nil {
			c.logger.Warn("failed to evict cache entry", "path", entry.Path, "error", err)
			continue
		}
		bytesToDelete -= float64(entry.Size)
		result.Evicted++
		result.FreedBytes += entry.Size
		c.metrics.CacheEviction(entry.Size)
	}

	after, err := c.usage(c.root)
	if err != nil {
		return result, err
	}
	result.UsageAfter = after.Percent()
	c.metrics.SetCacheUsage(result.UsageAfter)

	if result.UsageAfter >= c.config.MaximumUsagePercent {
		result.Exhausted = true
		c.logger.Warn("cache usage still above maximum after eviction",
			"usage_percent", result.UsageAfter,
			"maximum_percent", c.config.MaximumUsagePercent,
			"evicted", result.Evicted,
			"remaining_entries", c.Len())
		return result, nil
	}

	c.logger.Info("eviction finished",
		"evicted", result.Evicted,
		"freed", utils.FormatBytes(result.FreedBytes),
		"usage_percent", result.UsageAfter,
		"duration", time.Since(start))
	return result, nil
}
