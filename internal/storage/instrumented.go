package storage

import (
	"context"
	"io"
	"time"
)

// Observer receives the outcome of every backend operation.
type Observer interface {
	ObserveOperation(backend, operation string, elapsed time.Duration, err error)
}

// Instrument wraps st so each operation is reported to obs. A nil obs
// returns st unchanged.
func Instrument(st Storage, obs Observer) Storage {
	if obs == nil || st == nil {
		return st
	}
	if _, ok := st.(*instrumented); ok {
		return st
	}
	return &instrumented{Storage: st, obs: obs, backend: string(st.Type())}
}

// Unwrap returns the backend behind an instrumented Storage.
func Unwrap(st Storage) Storage {
	if in, ok := st.(*instrumented); ok {
		return in.Storage
	}
	return st
}

type instrumented struct {
	Storage
	obs     Observer
	backend string
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	s.obs.ObserveOperation(s.backend, op, time.Since(start), err)
}

func (s *instrumented) CreateStorageFile(ctx context.Context, rel string, content []byte) (f File, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err) }()
	return s.Storage.CreateStorageFile(ctx, rel, content)
}

func (s *instrumented) FileContent(ctx context.Context, f File) (b []byte, err error) {
	start := time.Now()
	defer func() { s.observe("content", start, err) }()
	return s.Storage.FileContent(ctx, f)
}

func (s *instrumented) Open(ctx context.Context, f File) (rc io.ReadCloser, err error) {
	start := time.Now()
	defer func() { s.observe("open", start, err) }()
	return s.Storage.Open(ctx, f)
}

func (s *instrumented) FileSize(ctx context.Context, f File) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe("size", start, err) }()
	return s.Storage.FileSize(ctx, f)
}

func (s *instrumented) Exists(ctx context.Context, f File) (ok bool, err error) {
	start := time.Now()
	defer func() { s.observe("exists", start, err) }()
	return s.Storage.Exists(ctx, f)
}

func (s *instrumented) Delete(ctx context.Context, f File) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()
	return s.Storage.Delete(ctx, f)
}

func (s *instrumented) Upload(ctx context.Context, localPath, rel string) (f File, err error) {
	start := time.Now()
	defer func() { s.observe("upload", start, err) }()
	return s.Storage.Upload(ctx, localPath, rel)
}

func (s *instrumented) Download(ctx context.Context, f File, localPath string) (err error) {
	start := time.Now()
	defer func() { s.observe("download", start, err) }()
	return s.Storage.Download(ctx, f, localPath)
}

func (s *instrumented) List(ctx context.Context, prefix string) (objs []ObjectInfo, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()
	return s.Storage.List(ctx, prefix)
}
