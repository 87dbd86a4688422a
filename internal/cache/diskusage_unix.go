//go:build linux || darwin || freebsd

package cache

import (
	"golang.org/x/sys/unix"

	"github.com/objectfs/storagemgr/pkg/errors"
)

// DiskUsage reports used and total bytes of the filesystem holding path.
// Used counts root-reserved free blocks as free, matching df.
func DiskUsage(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, errors.FromOSError("statfs", path, err, false).WithComponent("cache")
	}
	bsize := uint64(st.Bsize)
	total := uint64(st.Blocks) * bsize
	free := uint64(st.Bfree) * bsize
	return Usage{Used: total - free, Total: total}, nil
}
