package s3

import (
	"context"
	stderrors "errors"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/objectfs/storagemgr/pkg/errors"
)

// translateError maps an SDK error onto a StorageError. Missing objects and
// buckets and authorization failures are final; throttling, server faults
// and transport failures are retryable.
func translateError(err error, operation, bucket, key string) error {
	if err == nil {
		return nil
	}

	var se *errors.StorageError
	if stderrors.As(err, &se) {
		return err
	}

	wrap := func(code errors.ErrorCode, msg string) *errors.StorageError {
		return errors.NewError(code, msg).
			WithComponent("s3").
			WithOperation(operation).
			WithBucket(bucket).
			WithPath(key).
			WithCause(err)
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return wrap(errors.ErrCodeOperationCanceled, "request canceled")
	case stderrors.Is(err, context.DeadlineExceeded):
		return wrap(errors.ErrCodeConnectionTimeout, "request timed out").WithRetryable(true)
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		return wrap(errors.ErrCodeObjectNotFound, "object not found")
	case isErrorType[*s3types.NoSuchBucket](err):
		return wrap(errors.ErrCodeBucketNotFound, "bucket not found")
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return wrap(errors.ErrCodeObjectNotFound, "object not found")
		case "NoSuchBucket":
			return wrap(errors.ErrCodeBucketNotFound, "bucket not found")
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return wrap(errors.ErrCodeAccessDenied, "access denied")
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout", "RequestTimeTooSkewed":
			return wrap(errors.ErrCodeNetworkError, apiErr.ErrorCode()).WithRetryable(true)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return wrap(errors.ErrCodeNetworkError, "server error: "+apiErr.ErrorCode()).WithRetryable(true)
		}
		return wrap(errors.ErrCodeStorageRead, operation+" rejected: "+apiErr.ErrorCode())
	}

	return wrap(errors.ErrCodeNetworkError, operation+" failed")
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderrors.As(err, &target)
}
