package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/objectfs/storagemgr/pkg/errors"
)

// WriteLocal streams r into dst. Data lands in the TemporaryPrefix sibling of
// dst first and is renamed into place only after a successful sync, so dst
// never holds a partial file.
func WriteLocal(ctx context.Context, dst string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, errors.FromOSError("mkdir", filepath.Dir(dst), err, true)
	}

	tmp := TemporaryName(dst)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, errors.FromOSError("create", tmp, err, true)
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		_ = os.Remove(tmp)
		if ctx.Err() != nil {
			return n, errors.NewError(errors.ErrCodeOperationCanceled, "write canceled").
				WithPath(dst).WithCause(ctx.Err())
		}
		return n, errors.FromOSError("write", dst, err, true)
	}
	return n, nil
}

// ctxReader stops a copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
