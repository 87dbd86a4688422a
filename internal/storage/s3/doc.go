/*
Package s3 implements the storage backend for S3-compatible object stores.

A Backend is bound to one bucket. Relative paths are object keys; File values
render as s3://<bucket>/<key>.

	┌──────────────────────────────────────────┐
	│            storage.Storage               │
	└──────────────────────────────────────────┘
	                    │
	┌──────────────────────────────────────────┐
	│               Backend                    │
	│   retry.Retryer  │  translateError       │
	└──────────────────────────────────────────┘
	          │                      │
	┌──────────────────┐  ┌───────────────────────┐
	│    ObjectAPI     │  │ CargoShip transporter │
	│   (*s3.Client)   │  │  (large uploads)      │
	└──────────────────┘  └───────────────────────┘

# Retries

Every request runs under pkg/retry with the configured attempt budget
(max_request_attempts). The back-off starts at 200ms, doubles per attempt,
is capped at 5s and carries ±20% jitter. The SDK's own retryer is disabled
so the budget is not multiplied.

Errors are classified before the retry decision:

	NoSuchKey, NotFound          OBJECT_NOT_FOUND   final
	NoSuchBucket                 BUCKET_NOT_FOUND   final
	AccessDenied, Forbidden      ACCESS_DENIED      final
	SlowDown, Throttling, 5xx    NETWORK_ERROR      retried
	transport failures           NETWORK_ERROR      retried
	context canceled             OPERATION_CANCELED final

# Endpoints

Setting Endpoint targets MinIO, Ceph RGW or other S3-compatible services;
ForcePathStyle is usually required there. Without an AccessKey the default
AWS credential chain is used.

# Uploads

Upload streams a local file with PutObject. When UseTransporter is set, files
at or above MultipartThreshold go through the CargoShip transporter first,
falling back to PutObject if it fails.

Download stages the object under a temporary- name next to the destination
and renames it into place once the body has been fully written.
*/
package s3
