// Package storage defines the object-store contract the drive is built on:
// flat keys, prefix listing with an optional delimiter and continuation
// tokens, batch delete and server-side copy.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// MaxBatchDelete is the most keys a single DeleteObjects call accepts.
const MaxBatchDelete = 1000

// DefaultMaxKeys is the page size used when ListInput.MaxKeys is zero.
const DefaultMaxKeys = 1000

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListInput selects one page of a listing.
type ListInput struct {
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int
}

// ListPage is one page of listing results. With a delimiter, keys that
// contain it past the prefix are grouped into CommonPrefixes instead of
// being returned in Objects.
type ListPage struct {
	Objects               []ObjectInfo
	CommonPrefixes        []string
	NextContinuationToken string
	IsTruncated           bool
}

// Backend is the interface for object storage backends.
type Backend interface {
	// GetObject retrieves an object by key with optional range support.
	// If offset=0 and length=0, the entire object is returned.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// PutObject uploads content to the given key. An empty contentType lets
	// the backend pick its default.
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// DeleteObject removes an object by key. Deleting a missing key succeeds.
	DeleteObject(ctx context.Context, key string) error

	// DeleteObjects removes up to MaxBatchDelete keys in one call.
	DeleteObjects(ctx context.Context, keys []string) error

	// CopyObject copies an object from srcKey to dstKey.
	CopyObject(ctx context.Context, srcKey, dstKey string) error

	// ListObjects returns one page of keys under in.Prefix.
	ListObjects(ctx context.Context, in ListInput) (*ListPage, error)

	// Type returns the backend type identifier ("s3", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// URLOptions controls how SignedURL builds a client-fetchable link.
type URLOptions struct {
	Expiry time.Duration
	// Public asks for the CDN URL when one is configured.
	Public bool
	// DownloadAs forces a download with this filename.
	DownloadAs string
}

// URLSigner issues URLs that let clients talk to the store directly.
type URLSigner interface {
	// SignedURL returns a GET URL for key.
	SignedURL(ctx context.Context, key string, opts URLOptions) (string, error)

	// UploadURL returns a presigned PUT URL for key.
	UploadURL(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)

	// PublicURL returns the CDN URL for key, or "" when no CDN is configured.
	PublicURL(key string) string

	// ObjectLocation returns the canonical location of key after an upload.
	ObjectLocation(key string) string
}
