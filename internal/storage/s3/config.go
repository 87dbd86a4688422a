package s3

import (
	"github.com/objectfs/storagemgr/pkg/retry"
)

// Config represents S3 backend configuration
type Config struct {
	// Connection
	Region          string
	Endpoint        string
	AccessKey       string
	SecretAccessKey string
	ForcePathStyle  bool

	// Uploads at or above MultipartThreshold bytes go through the parallel
	// transporter when UseTransporter is set.
	UseTransporter     bool
	MultipartThreshold int64
	UploadConcurrency  int

	// Request retry budget and back-off.
	Retry retry.Config
}

// NewDefaultConfig returns a default S3 configuration
func NewDefaultConfig() *Config {
	return &Config{
		Region:             "us-east-1",
		MultipartThreshold: 64 * 1024 * 1024,
		UploadConcurrency:  4,
		Retry:              retry.DefaultConfig(),
	}
}
