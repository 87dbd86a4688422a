package s3

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/objectfs/storagemgr/internal/storage"
	"github.com/objectfs/storagemgr/pkg/errors"
	"github.com/objectfs/storagemgr/pkg/pathconv"
	"github.com/objectfs/storagemgr/pkg/retry"
	"github.com/objectfs/storagemgr/pkg/utils"
)

// ObjectAPI is the subset of the S3 client the backend uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

var _ ObjectAPI = (*s3.Client)(nil)

type uploadFunc func(ctx context.Context, key string, r io.Reader, size int64) error

// Backend implements storage.Storage for one S3 bucket.
type Backend struct {
	api       ObjectAPI
	bucket    string
	config    *Config
	retryer   *retry.Retryer
	converter *pathconv.Converter
	bulk      uploadFunc
	logger    *slog.Logger
}

var _ storage.Storage = (*Backend)(nil)

// NewBackend returns a backend for bucket using client. When the transporter
// is enabled in cfg, large uploads use it.
func NewBackend(client *s3.Client, bucket string, cfg *Config, logger *slog.Logger) (*Backend, error) {
	b, err := NewBackendWithAPI(client, bucket, cfg, logger)
	if err != nil {
		return nil, err
	}
	if b.config.UseTransporter {
		b.bulk = newTransporterUpload(client, b.bucket, b.config, b.logger)
	}
	return b, nil
}

// NewBackendWithAPI returns a backend for bucket on any ObjectAPI
// implementation.
func NewBackendWithAPI(api ObjectAPI, bucket string, cfg *Config, logger *slog.Logger) (*Backend, error) {
	bucket = strings.Trim(bucket, "/")
	if bucket == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "bucket name cannot be empty").
			WithComponent("s3")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	b := &Backend{
		api:       api,
		bucket:    bucket,
		config:    cfg,
		converter: pathconv.New("/" + bucket),
		logger:    utils.Component(logger, "s3").With("bucket", bucket),
	}
	b.retryer = retry.New(cfg.Retry).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		b.logger.Warn("retrying request", "attempt", attempt, "max_attempts", b.retryer.MaxAttempts(), "delay", delay, "error", err)
	})
	return b, nil
}

func (b *Backend) Type() storage.Type { return storage.TypeS3 }

// Root returns the bucket name.
func (b *Backend) Root() string { return b.bucket }

func (b *Backend) File(rel string) storage.File {
	return storage.NewS3File(b.bucket, rel)
}

// RelativePath strips an s3://bucket/ or /bucket/ prefix from abs.
func (b *Backend) RelativePath(abs string) string {
	return b.converter.RelativePath(abs)
}

// Check verifies the bucket is reachable.
func (b *Backend) Check(ctx context.Context) error {
	return b.do(ctx, "HeadBucket", "", func(ctx context.Context) error {
		_, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
		return err
	})
}

// do runs fn under the retry policy, translating SDK errors first so the
// retry classifier sees StorageError codes.
func (b *Backend) do(ctx context.Context, operation, key string, fn func(context.Context) error) error {
	return b.retryer.Do(ctx, func(ctx context.Context) error {
		return translateError(fn(ctx), operation, b.bucket, key)
	})
}

func (b *Backend) key(f storage.File) (string, error) {
	if f.Type() != storage.TypeS3 {
		return "", errors.Newf(errors.ErrCodePathInvalid, "not an s3 file: %s", f).WithComponent("s3")
	}
	if f.Bucket() != b.bucket {
		return "", errors.Newf(errors.ErrCodePathInvalid, "file belongs to bucket %q", f.Bucket()).
			WithComponent("s3").WithBucket(b.bucket)
	}
	if f.RelativePath() == "" {
		return "", errors.NewError(errors.ErrCodePathInvalid, "empty object key").
			WithComponent("s3").WithBucket(b.bucket)
	}
	return f.RelativePath(), nil
}

func (b *Backend) CreateStorageFile(ctx context.Context, rel string, content []byte) (storage.File, error) {
	if err := pathconv.ValidateRelative(rel); err != nil {
		return storage.File{}, errors.NewError(errors.ErrCodePathInvalid, err.Error()).WithPath(rel)
	}
	f := b.File(rel)
	key := f.RelativePath()

	err := b.do(ctx, "PutObject", key, func(ctx context.Context) error {
		_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(content),
			ContentLength: aws.Int64(int64(len(content))),
			ContentType:   aws.String(detectContentType(key)),
		})
		return err
	})
	if err != nil {
		return storage.File{}, err
	}
	b.logger.Debug("created object", "key", key, "size", len(content))
	return f, nil
}

func (b *Backend) FileContent(ctx context.Context, f storage.File) ([]byte, error) {
	key, err := b.key(f)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = b.do(ctx, "GetObject", key, func(ctx context.Context) error {
		out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	return data, err
}

// Open returns the object body. Only the request itself is retried; read
// failures on the returned stream surface to the caller.
func (b *Backend) Open(ctx context.Context, f storage.File) (io.ReadCloser, error) {
	key, err := b.key(f)
	if err != nil {
		return nil, err
	}

	var body io.ReadCloser
	err = b.do(ctx, "GetObject", key, func(ctx context.Context) error {
		out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		body = out.Body
		return nil
	})
	return body, err
}

func (b *Backend) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	var out *s3.HeadObjectOutput
	err := b.do(ctx, "HeadObject", key, func(ctx context.Context) error {
		var err error
		out, err = b.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	return out, err
}

func (b *Backend) FileSize(ctx context.Context, f storage.File) (int64, error) {
	key, err := b.key(f)
	if err != nil {
		return 0, err
	}
	out, err := b.head(ctx, key)
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (b *Backend) Exists(ctx context.Context, f storage.File) (bool, error) {
	key, err := b.key(f)
	if err != nil {
		return false, err
	}
	_, err = b.head(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.HasCode(err, errors.ErrCodeObjectNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (b *Backend) Delete(ctx context.Context, f storage.File) error {
	key, err := b.key(f)
	if err != nil {
		return err
	}
	return b.do(ctx, "DeleteObject", key, func(ctx context.Context) error {
		_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

func (b *Backend) Upload(ctx context.Context, localPath, rel string) (storage.File, error) {
	if err := pathconv.ValidateRelative(rel); err != nil {
		return storage.File{}, errors.NewError(errors.ErrCodePathInvalid, err.Error()).WithPath(rel)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return storage.File{}, errors.FromOSError("open", localPath, err, false).WithComponent("s3")
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return storage.File{}, errors.FromOSError("stat", localPath, err, false).WithComponent("s3")
	}
	size := info.Size()
	f := b.File(rel)
	key := f.RelativePath()

	if b.bulk != nil && size >= b.config.MultipartThreshold {
		uploadErr := b.bulk(ctx, key, src, size)
		if uploadErr == nil {
			return f, nil
		}
		b.logger.Warn("transporter upload failed, falling back to PutObject", "key", key, "error", uploadErr)
	}

	err = b.do(ctx, "PutObject", key, func(ctx context.Context) error {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(key),
			Body:          src,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(detectContentType(key)),
		})
		return err
	})
	if err != nil {
		return storage.File{}, err
	}
	b.logger.Debug("uploaded object", "source", localPath, "key", key, "size", utils.FormatBytes(size))
	return f, nil
}

// Download streams the object into localPath. An interrupted transfer is
// retried from the start.
func (b *Backend) Download(ctx context.Context, f storage.File, localPath string) error {
	key, err := b.key(f)
	if err != nil {
		return err
	}
	return b.do(ctx, "GetObject", key, func(ctx context.Context) error {
		out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		n, err := storage.WriteLocal(ctx, localPath, out.Body)
		if err != nil {
			switch errors.Code(err) {
			case errors.ErrCodeDiskFull, errors.ErrCodePermissionDenied, errors.ErrCodeOperationCanceled:
				return err
			}
			return errors.NewError(errors.ErrCodeNetworkError, "download interrupted").
				WithPath(localPath).WithCause(err)
		}
		b.logger.Debug("downloaded object", "key", key, "path", localPath, "size", utils.FormatBytes(n))
		return nil
	})
}

func (b *Backend) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	prefix = strings.TrimLeft(pathconv.Normalize(prefix), "/")

	var (
		out   []storage.ObjectInfo
		token *string
	)
	for {
		var page *s3.ListObjectsV2Output
		err := b.do(ctx, "ListObjectsV2", prefix, func(ctx context.Context) error {
			var err error
			page, err = b.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(b.bucket),
				Prefix:            aws.String(prefix),
				ContinuationToken: token,
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasPrefix(path.Base(key), storage.TemporaryPrefix) {
				continue
			}
			out = append(out, storage.ObjectInfo{File: b.File(key), Size: aws.ToInt64(obj.Size)})
		}

		if !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			return out, nil
		}
		token = page.NextContinuationToken
	}
}

func detectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".xml"):
		return "application/xml"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain"
	case strings.HasSuffix(key, ".zip"):
		return "application/zip"
	case strings.HasSuffix(key, ".tar"):
		return "application/x-tar"
	case strings.HasSuffix(key, ".gz"), strings.HasSuffix(key, ".tgz"):
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
