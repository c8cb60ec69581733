package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	apperrors "tablefix/internal/errors"
	"tablefix/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config contains S3 authentication configuration
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional S3-compatible endpoint
	AccessKey string
	SecretKey string
	Prefix    string
}

// S3API is the subset of the S3 client the store uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3BlobStore implements BlobStore using AWS S3 or a compatible service
type S3BlobStore struct {
	client S3API
	bucket string
	prefix string
}

// NewS3BlobStore loads AWS configuration and builds a client
func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewS3BlobStoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3BlobStoreWithClient wraps an existing client
func NewS3BlobStoreWithClient(client S3API, bucket, prefix string) *S3BlobStore {
	return &S3BlobStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.ExternalServiceError("s3", fmt.Errorf("failed to load AWS config: %w", err))
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

// Provider returns S3 provider type
func (s *S3BlobStore) Provider() ports.StorageProvider {
	return ports.StorageS3
}

func (s *S3BlobStore) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// StoreBlob uploads the data as one object
func (s *S3BlobStore) StoreBlob(ctx context.Context, key, contentType string, data io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   data,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return apperrors.ExternalServiceError("s3", fmt.Errorf("failed to upload %s: %w", key, err))
	}
	return nil
}

// GetBlob downloads an object
func (s *S3BlobStore) GetBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, apperrors.NotFound(fmt.Sprintf("blob %s", key))
		}
		return nil, apperrors.ExternalServiceError("s3", fmt.Errorf("failed to get %s: %w", key, err))
	}
	return resp.Body, nil
}

// BlobExists checks for the object with a HEAD request
func (s *S3BlobStore) BlobExists(ctx context.Context, key string) (bool, error) {
	_, err := s.head(ctx, key)
	if err == nil {
		return true, nil
	}
	if apperrors.Is(err, apperrors.CodeNotFound) {
		return false, nil
	}
	return false, err
}

// GetBlobMetadata reads object metadata
func (s *S3BlobStore) GetBlobMetadata(ctx context.Context, key string) (*ports.BlobMetadata, error) {
	out, err := s.head(ctx, key)
	if err != nil {
		return nil, err
	}

	meta := &ports.BlobMetadata{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Provider:    ports.StorageS3,
	}
	if out.LastModified != nil {
		meta.LastModified = *out.LastModified
	}
	return meta, nil
}

func (s *S3BlobStore) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, apperrors.NotFound(fmt.Sprintf("blob %s", key))
		}
		return nil, apperrors.ExternalServiceError("s3", fmt.Errorf("failed to stat %s: %w", key, err))
	}
	return out, nil
}

// Location returns the s3:// URL of the key
func (s *S3BlobStore) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.objectKey(key))
}
