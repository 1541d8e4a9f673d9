package source

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// S3Config configures access to logs stored in S3.
type S3Config struct {
	// Region is the AWS region
	Region string `yaml:"region"`

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string `yaml:"endpoint"`

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool `yaml:"use_path_style"`

	// Timeout bounds the whole download, body included.
	Timeout time.Duration `yaml:"timeout"`
}

// ParseS3URI splits s3://bucket/key into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", hmerrors.New(hmerrors.CodeInvalidFormat, "invalid s3 uri").
			WithContext("uri", uri)
	}
	return bucket, key, nil
}

// NewS3Client builds an S3 client from cfg, falling back to the default
// credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeStorage, "failed to load AWS config")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

func openS3(ctx context.Context, uri string, cfg S3Config) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cancel := context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, hmerrors.Wrap(err, hmerrors.CodeStorage, "failed to get object").
			WithContext("bucket", bucket).
			WithContext("key", key)
	}
	return &objectBody{ReadCloser: out.Body, cancel: cancel}, nil
}

// objectBody releases the request context when the body is closed.
type objectBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *objectBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}
