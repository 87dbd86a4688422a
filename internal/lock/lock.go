// Package lock implements the download lock: a process-local guard that
// keeps two callers from filling the same cache path at once.
//
// Lock polls a shared set. When the path is free it is inserted and Lock
// returns; otherwise Lock sleeps for the configured wait time and tries
// again, up to maxCycles times. There is no expiry. Every successful Lock
// must be paired with Unlock, usually through Do or a deferred Unlock.
package lock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/objectfs/storagemgr/internal/metrics"
	"github.com/objectfs/storagemgr/pkg/errors"
	"github.com/objectfs/storagemgr/pkg/utils"
)

const (
	DefaultWaitTime  = 500 * time.Millisecond
	DefaultMaxCycles = 600
)

// DownloadLock is a set of locked paths.
type DownloadLock struct {
	mu     sync.Mutex
	locked map[string]struct{}

	wait      time.Duration
	maxCycles int

	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a DownloadLock.
type Option func(*DownloadLock)

// WithLogger sets the logger used for timeout reports.
func WithLogger(logger *slog.Logger) Option {
	return func(l *DownloadLock) {
		l.logger = utils.Component(logger, "lock")
	}
}

// WithMetrics records wait times and timeouts on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *DownloadLock) {
		l.metrics = c
	}
}

// New creates a DownloadLock that waits wait between polls and gives up
// after maxCycles polls. Non-positive values fall back to the defaults.
func New(wait time.Duration, maxCycles int, opts ...Option) *DownloadLock {
	if wait <= 0 {
		wait = DefaultWaitTime
	}
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}
	l := &DownloadLock{
		locked:    make(map[string]struct{}),
		wait:      wait,
		maxCycles: maxCycles,
		logger:    utils.Component(nil, "lock"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires path. It returns LOCK_TIMEOUT when the path stays locked
// for maxCycles polls and OPERATION_CANCELED when ctx ends first.
func (l *DownloadLock) Lock(ctx context.Context, path string) error {
	start := time.Now()
	if l.tryLock(path) {
		l.metrics.ObserveLockWait(time.Since(start))
		return nil
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for cycle := 1; cycle <= l.maxCycles; cycle++ {
		select {
		case <-ctx.Done():
			return errors.NewError(errors.ErrCodeOperationCanceled, "lock wait canceled").
				WithPath(path).
				WithOperation("lock").
				WithCause(ctx.Err())
		case <-timer.C:
		}

		if l.tryLock(path) {
			l.metrics.ObserveLockWait(time.Since(start))
			return nil
		}
		timer.Reset(l.wait)
	}

	l.metrics.LockTimeout()
	l.logger.Warn("path locked too long", "path", path, "waited", time.Since(start), "cycles", l.maxCycles)
	return errors.Newf(errors.ErrCodeLockTimeout, "path locked for more than %d checks of %s", l.maxCycles, l.wait).
		WithPath(path).
		WithOperation("lock")
}

func (l *DownloadLock) tryLock(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.locked[path]; held {
		return false
	}
	l.locked[path] = struct{}{}
	return true
}

// Unlock releases path. Unlocking a free path is a no-op.
func (l *DownloadLock) Unlock(path string) {
	l.mu.Lock()
	delete(l.locked, path)
	l.mu.Unlock()
}

// Len returns the number of held paths.
func (l *DownloadLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locked)
}

// Do runs fn while holding path.
func (l *DownloadLock) Do(ctx context.Context, path string, fn func() error) error {
	if err := l.Lock(ctx, path); err != nil {
		return err
	}
	defer l.Unlock(path)
	return fn()
}
