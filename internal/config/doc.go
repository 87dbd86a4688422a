/*
Package config loads the storage manager configuration.

Values are resolved in three layers, later layers winning:

	┌──────────────────────────────┐
	│  Environment (STORAGEMGR_*)  │ ← Highest Priority
	└──────────────────────────────┘
	               │
	┌──────────────────────────────┐
	│   Configuration file (YAML)  │
	└──────────────────────────────┘
	               │
	┌──────────────────────────────┐
	│   Defaults (NewDefault)      │ ← Lowest Priority
	└──────────────────────────────┘

# Example

	global:
	  log:
	    level: INFO
	    format: json
	    file: /var/log/storagemgr/storagemgr.log
	    max_size_mb: 100
	    max_backups: 5
	    compress: true
	  metrics_port: 9090

	storage:
	  default_storage_type: S3
	  backend_base_path: /data/backend
	  source_path: /data/source
	  cache_path: /data/cache
	  s3:
	    access_key: AKIA...
	    secret_access_key: ...
	    region: eu-central-1
	    endpoint: https://s3.example.org
	    default_bucket: products
	    max_number_of_buckets: 20
	    force_path_style: true
	  retry:
	    max_request_attempts: 5
	    initial_delay: 200ms
	    max_delay: 5s

	cache:
	  maximum_usage_percent: 95
	  expected_usage_percent: 80

	lock:
	  file_check_wait_time: 500ms
	  max_file_wait_cycles: 600

# Environment Variables

	STORAGEMGR_LOG_LEVEL                    global.log.level
	STORAGEMGR_LOG_FORMAT                   global.log.format
	STORAGEMGR_LOG_FILE                     global.log.file
	STORAGEMGR_LOG_MAX_SIZE_MB              global.log.max_size_mb
	STORAGEMGR_LOG_MAX_BACKUPS              global.log.max_backups
	STORAGEMGR_METRICS_PORT                 global.metrics_port
	STORAGEMGR_DEFAULT_STORAGE_TYPE         storage.default_storage_type
	STORAGEMGR_BACKEND_BASE_PATH            storage.backend_base_path
	STORAGEMGR_SOURCE_PATH                  storage.source_path
	STORAGEMGR_CACHE_PATH                   storage.cache_path
	STORAGEMGR_MAX_REQUEST_ATTEMPTS         storage.retry.max_request_attempts
	STORAGEMGR_S3_ACCESS_KEY                storage.s3.access_key
	STORAGEMGR_S3_SECRET_ACCESS_KEY         storage.s3.secret_access_key
	STORAGEMGR_S3_REGION                    storage.s3.region
	STORAGEMGR_S3_ENDPOINT                  storage.s3.endpoint
	STORAGEMGR_S3_DEFAULT_BUCKET            storage.s3.default_bucket
	STORAGEMGR_S3_MAX_NUMBER_OF_BUCKETS     storage.s3.max_number_of_buckets
	STORAGEMGR_S3_FORCE_PATH_STYLE          storage.s3.force_path_style
	STORAGEMGR_S3_USE_TRANSPORTER           storage.s3.use_transporter
	STORAGEMGR_CACHE_MAXIMUM_USAGE_PERCENT  cache.maximum_usage_percent
	STORAGEMGR_CACHE_EXPECTED_USAGE_PERCENT cache.expected_usage_percent
	STORAGEMGR_FILE_CHECK_WAIT_TIME         lock.file_check_wait_time (duration or milliseconds)
	STORAGEMGR_MAX_FILE_WAIT_CYCLES         lock.max_file_wait_cycles

Validation failures carry INVALID_CONFIG or MISSING_CONFIG and are fatal at
startup.
*/
package config
