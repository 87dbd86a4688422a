// Package posix implements the storage backend for a local or network
// mounted filesystem.
package posix

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/objectfs/storagemgr/internal/storage"
	"github.com/objectfs/storagemgr/pkg/errors"
	"github.com/objectfs/storagemgr/pkg/pathconv"
	"github.com/objectfs/storagemgr/pkg/utils"
)

// Backend implements storage.Storage on a directory tree.
type Backend struct {
	basePath  string
	converter *pathconv.Converter
	logger    *slog.Logger
}

var _ storage.Storage = (*Backend)(nil)

// New returns a backend rooted at basePath. The directory is created if it
// does not exist; a root that cannot be created or written is an error.
func New(basePath string, logger *slog.Logger) (*Backend, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "posix base path must be set").
			WithComponent("posix")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodePathInvalid, "invalid base path").
			WithPath(basePath).WithCause(err)
	}
	if err := EnsureWritableDir(abs); err != nil {
		return nil, err
	}

	return &Backend{
		basePath:  abs,
		converter: pathconv.New(abs),
		logger:    utils.Component(logger, "posix").With("base_path", abs),
	}, nil
}

// EnsureWritableDir creates dir if needed and verifies a file can be created
// in it.
func EnsureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.FromOSError("mkdir", dir, err, true).WithComponent("posix")
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return errors.FromOSError("probe", dir, err, true).WithComponent("posix")
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

func (b *Backend) Type() storage.Type { return storage.TypePOSIX }

// Root returns the absolute base path.
func (b *Backend) Root() string { return b.basePath }

func (b *Backend) File(rel string) storage.File {
	return storage.NewPosixFile(b.basePath, rel)
}

func (b *Backend) RelativePath(abs string) string {
	return b.converter.RelativePath(abs)
}

// localPath resolves f to a filesystem path that is guaranteed to stay below
// its base path.
func (b *Backend) localPath(f storage.File) (string, error) {
	if f.Type() != storage.TypePOSIX {
		return "", errors.Newf(errors.ErrCodePathInvalid, "not a posix file: %s", f).WithComponent("posix")
	}
	base := f.BasePath()
	if base == "" {
		base = b.basePath
	}
	p, err := pathconv.Join(base, f.RelativePath())
	if err != nil {
		return "", errors.NewError(errors.ErrCodePathInvalid, err.Error()).
			WithPath(f.FullPath()).WithComponent("posix")
	}
	return p, nil
}

func (b *Backend) CreateStorageFile(ctx context.Context, rel string, content []byte) (storage.File, error) {
	if err := pathconv.ValidateRelative(rel); err != nil {
		return storage.File{}, errors.NewError(errors.ErrCodePathInvalid, err.Error()).WithPath(rel)
	}
	f := b.File(rel)
	dst, err := b.localPath(f)
	if err != nil {
		return storage.File{}, err
	}
	if _, err := storage.WriteLocal(ctx, dst, bytes.NewReader(content)); err != nil {
		return storage.File{}, withOp(err, "create")
	}
	b.logger.Debug("created file", "path", dst, "size", len(content))
	return f, nil
}

func (b *Backend) FileContent(ctx context.Context, f storage.File) ([]byte, error) {
	p, err := b.localPath(f)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.FromOSError("read", p, err, false).WithComponent("posix")
	}
	return data, nil
}

func (b *Backend) Open(ctx context.Context, f storage.File) (io.ReadCloser, error) {
	p, err := b.localPath(f)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if err != nil {
		return nil, errors.FromOSError("open", p, err, false).WithComponent("posix")
	}
	return file, nil
}

func (b *Backend) FileSize(ctx context.Context, f storage.File) (int64, error) {
	p, err := b.localPath(f)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, errors.FromOSError("stat", p, err, false).WithComponent("posix")
	}
	return info.Size(), nil
}

func (b *Backend) Exists(ctx context.Context, f storage.File) (bool, error) {
	p, err := b.localPath(f)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.FromOSError("stat", p, err, false).WithComponent("posix")
	}
}

func (b *Backend) Delete(ctx context.Context, f storage.File) error {
	p, err := b.localPath(f)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return errors.FromOSError("delete", p, err, true).WithComponent("posix")
	}
	return nil
}

func (b *Backend) Upload(ctx context.Context, localPath, rel string) (storage.File, error) {
	if err := pathconv.ValidateRelative(rel); err != nil {
		return storage.File{}, errors.NewError(errors.ErrCodePathInvalid, err.Error()).WithPath(rel)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return storage.File{}, errors.FromOSError("open", localPath, err, false).WithComponent("posix")
	}
	defer src.Close()

	f := b.File(rel)
	dst, err := b.localPath(f)
	if err != nil {
		return storage.File{}, err
	}
	if filepath.Clean(dst) == filepath.Clean(localPath) {
		return f, nil
	}
	n, err := storage.WriteLocal(ctx, dst, src)
	if err != nil {
		return storage.File{}, withOp(err, "upload")
	}
	b.logger.Debug("uploaded file", "source", localPath, "path", dst, "size", utils.FormatBytes(n))
	return f, nil
}

func (b *Backend) Download(ctx context.Context, f storage.File, localPath string) error {
	src, err := b.Open(ctx, f)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := storage.WriteLocal(ctx, localPath, src); err != nil {
		return withOp(err, "download")
	}
	return nil
}

// List walks the tree below prefix. Staging files and hidden entries are
// skipped.
func (b *Backend) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	prefix = strings.TrimLeft(pathconv.Normalize(prefix), "/")
	dir := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}
	root, err := pathconv.Join(b.basePath, dir)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodePathInvalid, err.Error()).WithPath(prefix)
	}

	var out []storage.ObjectInfo
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if p != root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || strings.HasPrefix(name, storage.TemporaryPrefix) {
			return nil
		}
		rel, err := filepath.Rel(b.basePath, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, storage.ObjectInfo{File: b.File(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewError(errors.ErrCodeOperationCanceled, "list canceled").WithCause(ctx.Err())
		}
		return nil, errors.FromOSError("list", root, err, false).WithComponent("posix")
	}
	return out, nil
}

func withOp(err error, op string) error {
	if se, ok := err.(*errors.StorageError); ok {
		return se.WithComponent("posix").WithOperation(op)
	}
	return err
}
