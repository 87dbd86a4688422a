package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/storagemgr/internal/storage"
	"github.com/objectfs/storagemgr/pkg/errors"
	"github.com/objectfs/storagemgr/pkg/retry"
	"github.com/objectfs/storagemgr/pkg/utils"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STORAGEMGR_"

// Configuration represents the complete storage manager configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Lock    LockConfig    `yaml:"lock"`
}

// GlobalConfig represents process-wide settings
type GlobalConfig struct {
	Log         utils.LogConfig `yaml:"log"`
	MetricsPort int             `yaml:"metrics_port"`
}

// StorageConfig selects the default backend and its roots
type StorageConfig struct {
	DefaultStorageType string       `yaml:"default_storage_type"`
	BackendBasePath    string       `yaml:"backend_base_path"`
	SourcePath         string       `yaml:"source_path"`
	CachePath          string       `yaml:"cache_path"`
	S3                 S3Config     `yaml:"s3"`
	Retry              retry.Config `yaml:"retry"`
}

// S3Config represents the object store connection
type S3Config struct {
	AccessKey          string `yaml:"access_key"`
	SecretAccessKey    string `yaml:"secret_access_key"`
	Region             string `yaml:"region"`
	Endpoint           string `yaml:"endpoint"`
	DefaultBucket      string `yaml:"default_bucket"`
	MaxNumberOfBuckets int    `yaml:"max_number_of_buckets"`
	ForcePathStyle     bool   `yaml:"force_path_style"`

	// Objects at or above MultipartThreshold bytes are uploaded through the
	// parallel transporter when UseTransporter is set.
	UseTransporter     bool  `yaml:"use_transporter"`
	MultipartThreshold int64 `yaml:"multipart_threshold"`
	UploadConcurrency  int   `yaml:"upload_concurrency"`
}

// CacheConfig represents the local file cache
type CacheConfig struct {
	MaximumUsagePercent  float64 `yaml:"maximum_usage_percent"`
	ExpectedUsagePercent float64 `yaml:"expected_usage_percent"`
}

// LockConfig represents download lock polling
type LockConfig struct {
	FileCheckWaitTime time.Duration `yaml:"file_check_wait_time"`
	MaxFileWaitCycles int           `yaml:"max_file_wait_cycles"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			Log: utils.LogConfig{
				Level:      "INFO",
				Format:     "text",
				MaxSizeMB:  100,
				MaxBackups: 5,
			},
			MetricsPort: 9090,
		},
		Storage: StorageConfig{
			DefaultStorageType: string(storage.TypePOSIX),
			BackendBasePath:    "/var/lib/storagemgr/backend",
			SourcePath:         "/var/lib/storagemgr/source",
			CachePath:          "/var/cache/storagemgr",
			S3: S3Config{
				Region:             "us-east-1",
				MaxNumberOfBuckets: 20,
				MultipartThreshold: 64 * 1024 * 1024,
				UploadConcurrency:  4,
			},
			Retry: retry.DefaultConfig(),
		},
		Cache: CacheConfig{
			MaximumUsagePercent:  95,
			ExpectedUsagePercent: 80,
		},
		Lock: LockConfig{
			FileCheckWaitTime: 500 * time.Millisecond,
			MaxFileWaitCycles: 600,
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeMissingConfig, "failed to read config file").
			WithPath(filename).WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeInvalidConfig, "failed to parse config file").
			WithPath(filename).WithCause(err)
	}

	return nil
}

// LoadFromEnv loads configuration from STORAGEMGR_* environment variables
func (c *Configuration) LoadFromEnv() error {
	var firstErr error
	setErr := func(name string, err error) {
		if firstErr == nil {
			firstErr = errors.NewError(errors.ErrCodeInvalidConfig, "invalid environment value").
				WithDetail("variable", EnvPrefix+name).WithCause(err)
		}
	}

	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok && val != "" {
			*dst = val
		}
	}
	integer := func(name string, dst *int) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				setErr(name, err)
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				setErr(name, err)
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			*dst = strings.ToLower(val) == "true"
		}
	}

	// Global settings
	str("LOG_LEVEL", &c.Global.Log.Level)
	str("LOG_FORMAT", &c.Global.Log.Format)
	str("LOG_FILE", &c.Global.Log.File)
	integer("LOG_MAX_SIZE_MB", &c.Global.Log.MaxSizeMB)
	integer("LOG_MAX_BACKUPS", &c.Global.Log.MaxBackups)
	integer("METRICS_PORT", &c.Global.MetricsPort)

	// Storage settings
	str("DEFAULT_STORAGE_TYPE", &c.Storage.DefaultStorageType)
	str("BACKEND_BASE_PATH", &c.Storage.BackendBasePath)
	str("SOURCE_PATH", &c.Storage.SourcePath)
	str("CACHE_PATH", &c.Storage.CachePath)
	integer("MAX_REQUEST_ATTEMPTS", &c.Storage.Retry.MaxAttempts)

	// S3 settings
	str("S3_ACCESS_KEY", &c.Storage.S3.AccessKey)
	str("S3_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey)
	str("S3_REGION", &c.Storage.S3.Region)
	str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	str("S3_DEFAULT_BUCKET", &c.Storage.S3.DefaultBucket)
	integer("S3_MAX_NUMBER_OF_BUCKETS", &c.Storage.S3.MaxNumberOfBuckets)
	boolean("S3_FORCE_PATH_STYLE", &c.Storage.S3.ForcePathStyle)
	boolean("S3_USE_TRANSPORTER", &c.Storage.S3.UseTransporter)

	// Cache settings
	float("CACHE_MAXIMUM_USAGE_PERCENT", &c.Cache.MaximumUsagePercent)
	float("CACHE_EXPECTED_USAGE_PERCENT", &c.Cache.ExpectedUsagePercent)

	// Lock settings
	if val := os.Getenv(EnvPrefix + "FILE_CHECK_WAIT_TIME"); val != "" {
		d, err := parseWait(val)
		if err != nil {
			setErr("FILE_CHECK_WAIT_TIME", err)
		} else {
			c.Lock.FileCheckWaitTime = d
		}
	}
	integer("MAX_FILE_WAIT_CYCLES", &c.Lock.MaxFileWaitCycles)

	return firstErr
}

// parseWait accepts a Go duration or a bare number of milliseconds.
func parseWait(val string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(val)
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	invalid := func(field, format string, args ...interface{}) error {
		return errors.Newf(errors.ErrCodeInvalidConfig, format, args...).
			WithComponent("config").WithDetail("field", field)
	}
	missing := func(field string) error {
		return errors.Newf(errors.ErrCodeMissingConfig, "%s must be set", field).
			WithComponent("config").WithDetail("field", field)
	}

	if _, err := utils.ParseLogLevel(c.Global.Log.Level); err != nil {
		return invalid("log.level", "invalid log level: %s (must be one of: DEBUG, INFO, WARN, ERROR)", c.Global.Log.Level)
	}
	if c.Global.MetricsPort < 0 || c.Global.MetricsPort > 65535 {
		return invalid("metrics_port", "metrics_port out of range: %d", c.Global.MetricsPort)
	}

	typ, err := storage.ParseType(c.Storage.DefaultStorageType)
	if err != nil {
		return err
	}
	if c.Storage.CachePath == "" {
		return missing("cache_path")
	}
	if c.Storage.SourcePath == "" {
		return missing("source_path")
	}
	switch typ {
	case storage.TypePOSIX:
		if c.Storage.BackendBasePath == "" {
			return missing("backend_base_path")
		}
	case storage.TypeS3:
		if c.Storage.S3.DefaultBucket == "" {
			return missing("s3.default_bucket")
		}
		if c.Storage.S3.Region == "" && c.Storage.S3.Endpoint == "" {
			return missing("s3.region")
		}
	}
	if (c.Storage.S3.AccessKey == "") != (c.Storage.S3.SecretAccessKey == "") {
		return invalid("s3.access_key", "s3.access_key and s3.secret_access_key must be set together")
	}
	if c.Storage.S3.MaxNumberOfBuckets <= 0 {
		return invalid("s3.max_number_of_buckets", "s3.max_number_of_buckets must be greater than 0")
	}
	if c.Storage.Retry.MaxAttempts <= 0 {
		return invalid("retry.max_request_attempts", "max_request_attempts must be greater than 0")
	}

	maxPct, expPct := c.Cache.MaximumUsagePercent, c.Cache.ExpectedUsagePercent
	if maxPct <= 0 || maxPct > 100 {
		return invalid("cache.maximum_usage_percent", "maximum_usage_percent must be in (0, 100], got %v", maxPct)
	}
	if expPct < 0 || expPct >= maxPct {
		return invalid("cache.expected_usage_percent",
			"expected_usage_percent must be in [0, maximum_usage_percent), got %v", expPct)
	}

	if c.Lock.FileCheckWaitTime <= 0 {
		return invalid("lock.file_check_wait_time", "file_check_wait_time must be greater than 0")
	}
	if c.Lock.MaxFileWaitCycles <= 0 {
		return invalid("lock.max_file_wait_cycles", "max_file_wait_cycles must be greater than 0")
	}

	return nil
}

// StorageType returns the parsed default backend type. Validate must have
// succeeded first.
func (c *Configuration) StorageType() storage.Type {
	t, _ := storage.ParseType(c.Storage.DefaultStorageType)
	return t
}
