package s3

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

const defaultURLExpiry = time.Hour

// SignedURL returns the CDN URL when the request is not a download, a CDN
// is configured and either the caller asked for a public URL or the
// backend always prefers the CDN. Otherwise it presigns a GET.
func (b *Backend) SignedURL(ctx context.Context, key string, opts storage.URLOptions) (string, error) {
	if opts.DownloadAs == "" && (opts.Public || b.cfg.AlwaysUseCDN) && b.cfg.CDNDomain != "" {
		return b.PublicURL(key), nil
	}

	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	}
	if opts.DownloadAs != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", opts.DownloadAs))
	}

	start := time.Now()
	req, err := b.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	metrics.RecordS3Operation("presign_get", time.Since(start), err == nil)
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, nil
}

// UploadURL returns a presigned PUT for key.
func (b *Backend) UploadURL(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	start := time.Now()
	req, err := b.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(expiry))
	metrics.RecordS3Operation("presign_put", time.Since(start), err == nil)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicURL returns https://<cdn>/<key>, or "" without a CDN.
func (b *Backend) PublicURL(key string) string {
	if b.cfg.CDNDomain == "" {
		return ""
	}
	return "https://" + b.cfg.CDNDomain + "/" + key
}

// ObjectLocation prefers the CDN URL and falls back to the bucket URL.
func (b *Backend) ObjectLocation(key string) string {
	if u := b.PublicURL(key); u != "" {
		return u
	}
	if b.cfg.Endpoint != "" {
		return b.cfg.Endpoint + "/" + path.Join(b.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.cfg.Bucket, b.cfg.Region, key)
}
