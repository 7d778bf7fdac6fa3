// Package s3 implements storage.Backend and storage.URLSigner on top of
// Amazon S3 or any S3-compatible service (MinIO, R2, Ceph).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

// BackendConfig holds connection settings for an S3 bucket.
type BackendConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string

	// CDNDomain, when set, is used for public and listing URLs.
	CDNDomain string
	// AlwaysUseCDN serves non-download URLs from the CDN even when the
	// caller did not ask for a public URL.
	AlwaysUseCDN bool
}

// Backend implements storage.Backend and storage.URLSigner using S3.
type Backend struct {
	client    *s3.Client
	presigner *s3.PresignClient
	cfg       BackendConfig
}

var (
	_ storage.Backend   = (*Backend)(nil)
	_ storage.URLSigner = (*Backend)(nil)
)

// NewBackend creates a new S3 backend. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies.
// A custom endpoint switches the client to path-style addressing.
func NewBackend(ctx context.Context, cfg BackendConfig) (*Backend, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	b := &Backend{
		client:    client,
		presigner: s3.NewPresignClient(client),
		cfg:       cfg,
	}

	if err := b.checkBucket(ctx); err != nil {
		logging.Warn("bucket check failed", zap.String("bucket", cfg.Bucket), logging.Err(err))
	}

	logging.Info("S3 backend ready",
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region),
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("cdn", cfg.CDNDomain != ""))
	return b, nil
}

func (b *Backend) checkBucket(ctx context.Context) error {
	start := time.Now()
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.cfg.Bucket),
	})
	metrics.RecordS3Operation("head_bucket", time.Since(start), err == nil)
	return err
}

// isNotFound reports whether err means the key does not exist.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
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

// GetObject retrieves an object from S3 with range support.
func (b *Backend) GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	start := time.Now()

	input := &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	}

	if offset > 0 || length > 0 {
		var rangeStr string
		if length > 0 {
			rangeStr = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
		} else {
			rangeStr = fmt.Sprintf("bytes=%d-", offset)
		}
		input.Range = aws.String(rangeStr)
	}

	result, err := b.client.GetObject(ctx, input)
	if err != nil {
		metrics.RecordS3Operation("get_object", time.Since(start), false)
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("get object %s: %w", key, storage.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("get object %s: %w", key, err)
	}

	metrics.RecordS3Operation("get_object", time.Since(start), true)

	return result.Body, aws.ToInt64(result.ContentLength), nil
}

// PutObject uploads content to S3.
func (b *Backend) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	start := time.Now()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		metrics.RecordS3Operation("put_object", time.Since(start), false)
		return fmt.Errorf("put object %s: %w", key, err)
	}

	metrics.RecordS3Operation("put_object", time.Since(start), true)
	logging.Debug("S3 put object", logging.Key(key), zap.Int64("size", size))
	return nil
}

// DeleteObject removes an object from S3.
func (b *Backend) DeleteObject(ctx context.Context, key string) error {
	start := time.Now()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		metrics.RecordS3Operation("delete_object", time.Since(start), false)
		return fmt.Errorf("delete object %s: %w", key, err)
	}

	metrics.RecordS3Operation("delete_object", time.Since(start), true)
	logging.Debug("S3 delete object", logging.Key(key))
	return nil
}

// DeleteObjects removes a batch of at most storage.MaxBatchDelete keys.
// Any per-key failure reported by S3 fails the whole call.
func (b *Backend) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > storage.MaxBatchDelete {
		return fmt.Errorf("delete objects: %d keys exceeds batch limit %d", len(keys), storage.MaxBatchDelete)
	}

	start := time.Now()

	ids := make([]types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
	}

	out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.cfg.Bucket),
		Delete: &types.Delete{
			Objects: ids,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		metrics.RecordS3Operation("delete_objects", time.Since(start), false)
		return fmt.Errorf("delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		metrics.RecordS3Operation("delete_objects", time.Since(start), false)
		first := out.Errors[0]
		return fmt.Errorf("delete objects: %d of %d failed, first %s: %s",
			len(out.Errors), len(keys), aws.ToString(first.Key), aws.ToString(first.Message))
	}

	metrics.RecordS3Operation("delete_objects", time.Since(start), true)
	logging.Debug("S3 delete objects", zap.Int("count", len(keys)))
	return nil
}

// CopyObject copies an S3 object from srcKey to dstKey within the bucket.
func (b *Backend) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	start := time.Now()

	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.cfg.Bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(b.cfg.Bucket, srcKey)),
	})
	if err != nil {
		metrics.RecordS3Operation("copy_object", time.Since(start), false)
		if isNotFound(err) {
			return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, storage.ErrNotFound)
		}
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, err)
	}

	metrics.RecordS3Operation("copy_object", time.Since(start), true)
	logging.Debug("S3 copy object", zap.String("src", srcKey), zap.String("dst", dstKey))
	return nil
}

// copySource builds the x-amz-copy-source value, escaping each segment.
func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

// ListObjects returns one ListObjectsV2 page.
func (b *Backend) ListObjects(ctx context.Context, in storage.ListInput) (*storage.ListPage, error) {
	start := time.Now()

	maxKeys := in.MaxKeys
	if maxKeys <= 0 {
		maxKeys = storage.DefaultMaxKeys
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.cfg.Bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if in.Prefix != "" {
		input.Prefix = aws.String(in.Prefix)
	}
	if in.Delimiter != "" {
		input.Delimiter = aws.String(in.Delimiter)
	}
	if in.ContinuationToken != "" {
		input.ContinuationToken = aws.String(in.ContinuationToken)
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		metrics.RecordS3Operation("list_objects", time.Since(start), false)
		return nil, fmt.Errorf("list objects %q: %w", in.Prefix, err)
	}
	metrics.RecordS3Operation("list_objects", time.Since(start), true)

	page := &storage.ListPage{
		Objects:               make([]storage.ObjectInfo, 0, len(out.Contents)),
		CommonPrefixes:        make([]string, 0, len(out.CommonPrefixes)),
		NextContinuationToken: aws.ToString(out.NextContinuationToken),
		IsTruncated:           aws.ToBool(out.IsTruncated),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, storage.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	for _, cp := range out.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	return page, nil
}

// Type returns "s3".
func (b *Backend) Type() string { return "s3" }

// Close is a no-op for S3 backends.
func (b *Backend) Close() error { return nil }
