// Package s3test provides an in-memory object store implementing the S3
// backend's ObjectAPI, for tests.
package s3test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Fake stores objects per bucket. Errors queued with FailNext are returned,
// in order, by the named operation before it starts succeeding.
type Fake struct {
	// PageSize limits ListObjectsV2 pages.
	PageSize int

	mu      sync.Mutex
	objects map[string]map[string][]byte
	missing map[string]bool
	fail    map[string][]error
	calls   map[string]int
}

func New() *Fake {
	return &Fake{
		PageSize: 1000,
		objects:  make(map[string]map[string][]byte),
		missing:  make(map[string]bool),
		fail:     make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// FailNext queues errs for op, e.g. "GetObject".
func (f *Fake) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = append(f.fail[op], errs...)
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Put stores data directly.
func (f *Fake) Put(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket(bucket)[key] = append([]byte(nil), data...)
}

// Object returns the stored data of bucket/key.
func (f *Fake) Object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket][key]
	return data, ok
}

// RemoveBucket makes bucket answer NoSuchBucket.
func (f *Fake) RemoveBucket(bucket string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket)
	f.missing[bucket] = true
}

func (f *Fake) bucket(name string) map[string][]byte {
	b, ok := f.objects[name]
	if !ok {
		b = make(map[string][]byte)
		f.objects[name] = b
	}
	return b
}

func (f *Fake) enter(op string, bucket *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if q := f.fail[op]; len(q) > 0 {
		f.fail[op] = q[1:]
		return q[0]
	}
	if f.missing[aws.ToString(bucket)] {
		return &s3types.NoSuchBucket{Message: aws.String("bucket does not exist")}
	}
	return nil
}

func (f *Fake) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := f.enter("GetObject", in.Bucket); err != nil {
		return nil, err
	}
	data, ok := f.Object(aws.ToString(in.Bucket), aws.ToString(in.Key))
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *Fake) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := f.enter("PutObject", in.Bucket); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.Put(aws.ToString(in.Bucket), aws.ToString(in.Key), data)
	return &s3.PutObjectOutput{}, nil
}

func (f *Fake) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if err := f.enter("HeadObject", in.Bucket); err != nil {
		return nil, err
	}
	data, ok := f.Object(aws.ToString(in.Bucket), aws.ToString(in.Key))
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *Fake) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if err := f.enter("DeleteObject", in.Bucket); err != nil {
		return nil, err
	}
	f.mu.Lock()
	delete(f.objects[aws.ToString(in.Bucket)], aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *Fake) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if err := f.enter("ListObjectsV2", in.Bucket); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	objects := f.objects[aws.ToString(in.Bucket)]
	var keys []string
	for k := range objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := start + f.PageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(objects[k]))),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *Fake) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if err := f.enter("HeadBucket", in.Bucket); err != nil {
		return nil, err
	}
	return &s3.HeadBucketOutput{}, nil
}
