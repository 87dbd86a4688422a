package cache

import (
	"os"
	"strings"
	"time"

	"github.com/objectfs/storagemgr/internal/storage"
	"github.com/objectfs/storagemgr/pkg/errors"
)

// writeSidecar records accessedAt for the file at path. The sidecar holds a
// single RFC 3339 UTC instant and nothing else.
func writeSidecar(path string, accessedAt time.Time) error {
	sidecar := storage.AccessedName(path)
	data := []byte(accessedAt.UTC().Format(time.RFC3339Nano))
	if err := os.WriteFile(sidecar, data, 0644); err != nil {
		return errors.FromOSError("write sidecar", sidecar, err, true).WithComponent("cache")
	}
	return nil
}

// readSidecar returns the instant recorded for the file at path.
func readSidecar(path string) (time.Time, error) {
	sidecar := storage.AccessedName(path)
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return time.Time{}, errors.FromOSError("read sidecar", sidecar, err, false).WithComponent("cache")
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, errors.NewError(errors.ErrCodeStorageRead, "malformed sidecar").
			WithPath(sidecar).
			WithComponent("cache").
			WithCause(err)
	}
	return t.UTC(), nil
}
