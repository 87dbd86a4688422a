//go:build !linux && !darwin && !freebsd

package cache

import "github.com/objectfs/storagemgr/pkg/errors"

// DiskUsage is not implemented on this platform. Configure Config.Usage.
func DiskUsage(path string) (Usage, error) {
	return Usage{}, errors.NewError(errors.ErrCodeInternalError, "disk usage not supported on this platform").
		WithPath(path).
		WithComponent("cache").
		WithRetryable(false)
}
