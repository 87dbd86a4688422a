package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/storagemgr/pkg/errors"
)

func TestParseType(t *testing.T) {
	for _, in := range []string{"POSIX", "posix", " Posix "} {
		typ, err := ParseType(in)
		require.NoError(t, err)
		assert.Equal(t, TypePOSIX, typ)
	}

	typ, err := ParseType("s3")
	require.NoError(t, err)
	assert.Equal(t, TypeS3, typ)

	_, err = ParseType("ftp")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnknownStorageType))
}

func TestPosixFile(t *testing.T) {
	f := NewPosixFile("/data/backend/", "/a/b.txt")

	assert.Equal(t, TypePOSIX, f.Type())
	assert.Equal(t, "/data/backend", f.BasePath())
	assert.Equal(t, "", f.Bucket())
	assert.Equal(t, "a/b.txt", f.RelativePath())
	assert.Equal(t, "/data/backend/a/b.txt", f.FullPath())
	assert.Equal(t, "b.txt", f.FileName())
	assert.Equal(t, f.FullPath(), f.String())
	assert.False(t, f.IsZero())

	root := NewPosixFile("/", "x")
	assert.Equal(t, "/x", root.FullPath())
}

func TestS3File(t *testing.T) {
	f := NewS3File("my-bucket", "products/p1.zip")

	assert.Equal(t, TypeS3, f.Type())
	assert.Equal(t, "my-bucket", f.Bucket())
	assert.Equal(t, "", f.BasePath())
	assert.Equal(t, "s3://my-bucket/products/p1.zip", f.FullPath())
	assert.Equal(t, "p1.zip", f.FileName())
}

func TestFileIsComparable(t *testing.T) {
	a := NewS3File("b", "k")
	b := NewS3File("b", "/k")
	assert.Equal(t, a, b)
	assert.True(t, File{}.IsZero())
}

func TestSidecarNames(t *testing.T) {
	assert.Equal(t, "/cache/x/temporary-y.bin", TemporaryName("/cache/x/y.bin"))
	assert.Equal(t, "/cache/x/accessed-y.bin", AccessedName("/cache/x/y.bin"))
	assert.Equal(t, "accessed-y.bin", AccessedName("y.bin"))
}

func TestWriteLocal(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "deep", "dir", "file.bin")

	n, err := WriteLocal(context.Background(), dst, strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = os.Stat(TemporaryName(dst))
	assert.True(t, os.IsNotExist(err), "temporary file must be gone after rename")
}

func TestWriteLocal_CanceledLeavesNothing(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "file.bin")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WriteLocal(ctx, dst, bytes.NewReader(make([]byte, 1024)))
	assert.True(t, errors.HasCode(err, errors.ErrCodeOperationCanceled))

	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(TemporaryName(dst))
	assert.True(t, os.IsNotExist(err))
}

type recordingObserver struct {
	ops  []string
	errs []error
}

func (r *recordingObserver) ObserveOperation(backend, op string, _ time.Duration, err error) {
	r.ops = append(r.ops, backend+":"+op)
	r.errs = append(r.errs, err)
}

type stubStorage struct {
	Storage
	err error
}

func (s stubStorage) Type() Type { return TypePOSIX }

func (s stubStorage) Exists(context.Context, File) (bool, error) { return false, s.err }

func TestInstrument(t *testing.T) {
	obs := &recordingObserver{}
	failure := errors.NewError(errors.ErrCodeNetworkError, "boom")
	st := Instrument(stubStorage{err: failure}, obs)

	_, err := st.Exists(context.Background(), File{})
	require.Error(t, err)

	assert.Equal(t, []string{"POSIX:exists"}, obs.ops)
	assert.Same(t, failure, obs.errs[0])

	assert.Equal(t, st, Instrument(st, obs), "double instrumentation must be a no-op")
	assert.IsType(t, stubStorage{}, Unwrap(st))

	plain := stubStorage{}
	assert.Equal(t, Storage(plain), Instrument(plain, nil))
}
