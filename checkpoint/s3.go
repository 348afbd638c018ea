package checkpoint

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates checkpoint objects in S3 or an S3-compatible store.
type S3Config struct {
	Bucket string
	// Prefix is prepended to every object key.
	Prefix string
	// Region overrides the default chain's region.
	Region string
	// Endpoint targets S3-compatible stores such as MinIO or R2.
	Endpoint     string
	UsePathStyle bool
	// MaxAttempts caps SDK retries per request. Zero keeps the SDK default.
	MaxAttempts int
}

var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Validate checks the bucket name and retry setting.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("S3 bucket is required")
	}
	if !bucketName.MatchString(c.Bucket) {
		return fmt.Errorf("invalid S3 bucket name %q", c.Bucket)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be >= 0, got %d", c.MaxAttempts)
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" or "s3://bucket/prefix" into bucket
// and prefix. Surrounding slashes on the prefix are dropped.
func ParseS3Path(path string) (bucket, prefix string) {
	path = strings.TrimPrefix(path, "s3://")
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, strings.Trim(prefix, "/")
}

// NewS3Factory returns a lode store factory over one shared S3 client.
// Credentials come from the AWS default chain.
func NewS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	if s3cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(s3cfg.MaxAttempts))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, wrap("init", s3cfg.Bucket, fmt.Errorf("load AWS config: %w", err))
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = &s3cfg.Endpoint
		}
		o.UsePathStyle = s3cfg.UsePathStyle
	})
	store := lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix}
	return func() (lode.Store, error) {
		return lodes3.New(client, store)
	}, nil
}

// NewS3Client opens a checkpoint client on S3.
func NewS3Client(ctx context.Context, cfg Config, s3cfg S3Config) (*Client, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewClientWithFactory(cfg, factory)
}
