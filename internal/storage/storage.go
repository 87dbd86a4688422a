// Package storage defines the backend-independent file reference and the
// operations every storage backend provides.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/objectfs/storagemgr/pkg/errors"
	"github.com/objectfs/storagemgr/pkg/pathconv"
)

// Type identifies a storage backend.
type Type string

const (
	TypePOSIX Type = "POSIX"
	TypeS3    Type = "S3"
)

// Filename prefixes shared by every writer that stages data next to its final
// location.
const (
	TemporaryPrefix = "temporary-"
	AccessedPrefix  = "accessed-"
)

// ParseType parses a backend type name, case-insensitively.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(s))) {
	case TypePOSIX:
		return TypePOSIX, nil
	case TypeS3:
		return TypeS3, nil
	default:
		return "", errors.Newf(errors.ErrCodeUnknownStorageType, "unknown storage type %q", s).
			WithComponent("storage")
	}
}

func (t Type) String() string { return string(t) }

// File identifies one object in one backend: a POSIX base path plus relative
// path, or an S3 bucket plus key. It is an immutable value.
type File struct {
	typ  Type
	root string
	rel  string
}

// NewPosixFile returns a File under the POSIX directory basePath.
func NewPosixFile(basePath, rel string) File {
	bp := pathconv.Normalize(basePath)
	if bp != "/" {
		bp = strings.TrimRight(bp, "/")
	}
	return File{typ: TypePOSIX, root: bp, rel: cleanRel(rel)}
}

// NewS3File returns a File for key rel in bucket.
func NewS3File(bucket, rel string) File {
	return File{typ: TypeS3, root: strings.Trim(bucket, "/"), rel: cleanRel(rel)}
}

func cleanRel(rel string) string {
	return strings.TrimLeft(pathconv.Normalize(rel), "/")
}

// Type returns the backend type.
func (f File) Type() Type { return f.typ }

// Root returns the base path (POSIX) or bucket (S3).
func (f File) Root() string { return f.root }

// RelativePath returns the path relative to Root.
func (f File) RelativePath() string { return f.rel }

// BasePath returns the POSIX base path, or "" for S3 files.
func (f File) BasePath() string {
	if f.typ == TypePOSIX {
		return f.root
	}
	return ""
}

// Bucket returns the S3 bucket, or "" for POSIX files.
func (f File) Bucket() string {
	if f.typ == TypeS3 {
		return f.root
	}
	return ""
}

// FullPath returns "<base>/<rel>" for POSIX and "s3://<bucket>/<rel>" for S3.
func (f File) FullPath() string {
	if f.typ == TypeS3 {
		return pathconv.S3Scheme + f.root + "/" + f.rel
	}
	if f.root == "/" {
		return "/" + f.rel
	}
	return f.root + "/" + f.rel
}

// FileName returns the last element of the relative path.
func (f File) FileName() string {
	if f.rel == "" {
		return ""
	}
	return path.Base(f.rel)
}

// IsZero reports whether f is the zero File.
func (f File) IsZero() bool { return f.typ == "" }

func (f File) String() string { return f.FullPath() }

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	File File
	Size int64
}

// Storage performs byte-level operations against one backend root. An
// instance is bound to a single (type, root) pair and is safe for
// concurrent use.
type Storage interface {
	Type() Type
	// Root returns the base path (POSIX) or bucket (S3).
	Root() string

	// File builds a File for rel under this backend's root.
	File(rel string) File
	// RelativePath converts an absolute path or URI into a path relative to
	// this backend's root.
	RelativePath(abs string) string

	// CreateStorageFile writes content at rel, creating parent directories.
	CreateStorageFile(ctx context.Context, rel string, content []byte) (File, error)
	FileContent(ctx context.Context, f File) ([]byte, error)
	Open(ctx context.Context, f File) (io.ReadCloser, error)
	FileSize(ctx context.Context, f File) (int64, error)
	Exists(ctx context.Context, f File) (bool, error)
	Delete(ctx context.Context, f File) error

	// Upload copies the local file at localPath to rel.
	Upload(ctx context.Context, localPath, rel string) (File, error)
	// Download copies f to localPath. The data is staged under a
	// TemporaryPrefix name and renamed into place once complete.
	Download(ctx context.Context, f File, localPath string) error
	// List returns the objects whose relative path starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// TemporaryName returns the staging name for the file at p.
func TemporaryName(p string) string {
	dir, name := splitLast(p)
	return dir + TemporaryPrefix + name
}

// AccessedName returns the sidecar name for the file at p.
func AccessedName(p string) string {
	dir, name := splitLast(p)
	return dir + AccessedPrefix + name
}

func splitLast(p string) (dir, name string) {
	i := strings.LastIndexAny(p, `/\`)
	return p[:i+1], p[i+1:]
}
