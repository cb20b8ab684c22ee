package casestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"rentcase/internal/domain"
)

// Backend reads and replaces the single snapshot artifact.
type Backend interface {
	// Read returns the raw snapshot bytes or an error wrapping
	// domain.ErrStoreNotFound when nothing has been written yet.
	Read(ctx context.Context) ([]byte, error)
	// Write atomically replaces the snapshot.
	Write(ctx context.Context, data []byte) error
	String() string
}

// S3Config holds credentials for the S3 backend. Empty keys fall back to the
// default AWS credential chain.
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
}

// OpenBackend selects a backend from a location: "s3://bucket/key" or a
// local file path.
func OpenBackend(ctx context.Context, location string, s3cfg S3Config) (Backend, error) {
	if rest, ok := strings.CutPrefix(location, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 location %q, want s3://bucket/key", location)
		}
		return NewS3Backend(ctx, bucket, key, s3cfg)
	}
	if location == "" {
		return nil, errors.New("empty snapshot location")
	}
	return NewFileBackend(location), nil
}

// FileBackend stores the snapshot as a local file.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend for path.
func NewFileBackend(path string) *FileBackend { return &FileBackend{path: path} }

func (b *FileBackend) String() string { return b.path }

// Read returns the file contents.
func (b *FileBackend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, b.path)
	}
	return data, err
}

// Write writes to a temp file in the destination directory and renames it
// over the target, so readers see either the old or the new snapshot.
func (b *FileBackend) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// S3Backend stores the snapshot as one S3 object. PutObject replaces the
// object atomically.
type S3Backend struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Backend loads AWS config and creates a backend for bucket/key.
func NewS3Backend(ctx context.Context, bucket, key string, cfg S3Config) (*S3Backend, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Backend{client: s3.NewFromConfig(awsCfg), bucket: bucket, key: key}, nil
}

func (b *S3Backend) String() string { return "s3://" + b.bucket + "/" + b.key }

// Read downloads the snapshot object.
func (b *S3Backend) Read(ctx context.Context) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, b)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Write uploads the snapshot object.
func (b *S3Backend) Write(ctx context.Context, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}
