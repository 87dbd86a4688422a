package s3

import (
	"context"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/objectfs/storagemgr/pkg/errors"
)

// NewClient builds an S3 client from cfg. Static credentials are used when an
// access key is configured, otherwise the default AWS credential chain
// applies. SDK-level retries are disabled because every backend call runs
// under its own retry policy.
func NewClient(ctx context.Context, cfg *Config) (*s3.Client, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "failed to load AWS config").
			WithComponent("s3").WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// newTransporterUpload returns an upload function backed by the CargoShip
// parallel transporter for bucket.
func newTransporterUpload(client *s3.Client, bucket string, cfg *Config, logger *slog.Logger) uploadFunc {
	concurrency := cfg.UploadConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	transporter := cargoships3.NewTransporter(client, awsconfig.S3Config{
		Bucket:             bucket,
		StorageClass:       awsconfig.StorageClassStandard,
		MultipartThreshold: 32 * 1024 * 1024,
		MultipartChunkSize: 16 * 1024 * 1024,
		Concurrency:        concurrency,
	})
	logger.Info("parallel transporter enabled",
		"bucket", bucket,
		"threshold", cfg.MultipartThreshold,
		"concurrency", concurrency)

	return func(ctx context.Context, key string, r io.Reader, size int64) error {
		result, err := transporter.Upload(ctx, cargoships3.Archive{
			Key:          key,
			Reader:       r,
			Size:         size,
			StorageClass: awsconfig.StorageClassStandard,
			Metadata: map[string]string{
				"storagemgr-upload": "true",
			},
		})
		if err != nil {
			return err
		}
		logger.Debug("transporter upload completed",
			"key", key,
			"size", size,
			"throughput", result.Throughput,
			"duration", result.Duration)
		return nil
	}
}
