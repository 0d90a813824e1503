package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

const (
	SSEAlgorithmAES256 = "AES256"
	SSEAlgorithmKMS    = "aws:kms"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	Prefix          string // Optional key prefix inside the bucket
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO-specific options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// ObjectClient is the subset of the S3 API the backend reads and deletes through.
type ObjectClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Uploader matches manager.Uploader.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Backend is an AWS S3 implementation of the sealedlog.BlobStore interface
type Backend struct {
	client   ObjectClient
	uploader Uploader
	bucket   string
	prefix   string

	enableSSE    bool
	sseAlgorithm string
	sseKMSKeyID  string
}

// normalize fills defaults and validates SSE settings.
func (c *Config) normalize() error {
	if c.Bucket == "" {
		return errors.New("bucket name is required")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.EnableSSE && c.SSEAlgorithm == "" {
		c.SSEAlgorithm = SSEAlgorithmAES256
	}
	switch c.SSEAlgorithm {
	case "", SSEAlgorithmAES256:
	case SSEAlgorithmKMS:
		if c.SSEKMSKeyID == "" {
			return errors.New("KMS key ID is required when using aws:kms encryption")
		}
	default:
		return fmt.Errorf("unsupported SSE algorithm %q", c.SSEAlgorithm)
	}
	return nil
}

// New creates a new S3 storage backend
func New(ctx context.Context, config Config) (sealedlog.BlobStore, error) {
	if err := config.normalize(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = config.UsePathStyle
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})

	if config.CreateBucketIfNotExist {
		_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(config.Bucket),
		})
		if err != nil {
			_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
				Bucket: aws.String(config.Bucket),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create bucket: %w", err)
			}
		}
	}

	return NewWithClient(config, client, manager.NewUploader(client))
}

// NewWithClient builds a backend on caller-supplied clients.
func NewWithClient(config Config, client ObjectClient, uploader Uploader) (*Backend, error) {
	if err := config.normalize(); err != nil {
		return nil, err
	}
	return &Backend{
		client:       client,
		uploader:     uploader,
		bucket:       config.Bucket,
		prefix:       config.Prefix,
		enableSSE:    config.EnableSSE,
		sseAlgorithm: config.SSEAlgorithm,
		sseKMSKeyID:  config.SSEKMSKeyID,
	}, nil
}

func (b *Backend) key(objectKey string) string {
	if b.prefix == "" {
		return objectKey
	}
	return b.prefix + "/" + objectKey
}

// Upload uploads content to S3 through the multipart upload manager
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key(objectKey)),
		Body:        reader,
		ContentType: aws.String("application/octet-stream"),
	}

	if b.enableSSE {
		switch b.sseAlgorithm {
		case SSEAlgorithmAES256:
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		case SSEAlgorithmKMS:
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(b.sseKMSKeyID)
		}
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Download downloads content directly from S3
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(objectKey)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, sealedlog.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to download object: %w", err)
	}

	return result.Body, nil
}

// Delete deletes content from S3. S3 reports success for missing keys.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(objectKey)),
	})
	if err != nil {
		if isNotFound(err) {
			return sealedlog.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
