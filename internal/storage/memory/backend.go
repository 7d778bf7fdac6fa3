// Package memory is an in-process storage.Backend with S3 listing
// semantics. It backs STORAGE_BACKEND=memory and the drive tests.
package memory

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fruitsalade/bucketdrive/internal/storage"
)

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithPageSize caps every list page at n entries regardless of MaxKeys.
func WithPageSize(n int) Option {
	return func(b *Backend) { b.pageSize = n }
}

// WithClock sets the time source for LastModified.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// Backend keeps objects in a map guarded by a RWMutex.
type Backend struct {
	mu       sync.RWMutex
	objects  map[string]object
	pageSize int
	now      func() time.Time
}

var (
	_ storage.Backend   = (*Backend)(nil)
	_ storage.URLSigner = (*Backend)(nil)
)

// New creates an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		objects: make(map[string]object),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetObject returns a reader over a copy of the stored bytes.
func (b *Backend) GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	b.mu.RLock()
	obj, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("get object %s: %w", key, storage.ErrNotFound)
	}

	data := obj.data
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	data = data[offset:]
	if length > 0 && length < int64(len(data)) {
		data = data[:length]
	}
	out := bytes.Clone(data)
	return io.NopCloser(bytes.NewReader(out)), int64(len(out)), nil
}

// PutObject stores body under key.
func (b *Backend) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var data []byte
	if body != nil {
		var err error
		data, err = io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("put object %s: %w", key, err)
		}
	}
	b.mu.Lock()
	b.objects[key] = object{data: data, contentType: contentType, lastModified: b.now()}
	b.mu.Unlock()
	return nil
}

// DeleteObject removes key. Missing keys are ignored.
func (b *Backend) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
	return nil
}

// DeleteObjects removes up to storage.MaxBatchDelete keys.
func (b *Backend) DeleteObjects(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(keys) > storage.MaxBatchDelete {
		return fmt.Errorf("delete objects: %d keys exceeds batch limit %d", len(keys), storage.MaxBatchDelete)
	}
	b.mu.Lock()
	for _, k := range keys {
		delete(b.objects, k)
	}
	b.mu.Unlock()
	return nil
}

// CopyObject duplicates srcKey at dstKey with a fresh LastModified.
func (b *Backend) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[srcKey]
	if !ok {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, storage.ErrNotFound)
	}
	b.objects[dstKey] = object{
		data:         bytes.Clone(obj.data),
		contentType:  obj.contentType,
		lastModified: b.now(),
	}
	return nil
}

// Continuation tokens are opaque to callers. They encode the last key
// ("k:") or the last common prefix ("p:") returned on the previous page.
func encodeToken(kind, last string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(kind + ":" + last))
}

func decodeToken(tok string) (kind, last string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return "", "", fmt.Errorf("invalid continuation token: %w", err)
	}
	kind, last, ok := strings.Cut(string(raw), ":")
	if !ok || (kind != "k" && kind != "p") {
		return "", "", fmt.Errorf("invalid continuation token")
	}
	return kind, last, nil
}

// ListObjects walks keys in lexical order. Objects and common prefixes
// both count toward the page size, as in ListObjectsV2.
func (b *Backend) ListObjects(ctx context.Context, in storage.ListInput) (*storage.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxKeys := in.MaxKeys
	if maxKeys <= 0 {
		maxKeys = storage.DefaultMaxKeys
	}
	if b.pageSize > 0 && b.pageSize < maxKeys {
		maxKeys = b.pageSize
	}

	var afterKind, after string
	if in.ContinuationToken != "" {
		var err error
		afterKind, after, err = decodeToken(in.ContinuationToken)
		if err != nil {
			return nil, err
		}
	}

	b.mu.RLock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, in.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := &storage.ListPage{}
	count := 0
	lastKind, last := "", ""
	for _, k := range keys {
		switch afterKind {
		case "k":
			if k <= after {
				continue
			}
		case "p":
			if k <= after || strings.HasPrefix(k, after) {
				continue
			}
		}

		if in.Delimiter != "" {
			rest := k[len(in.Prefix):]
			if i := strings.Index(rest, in.Delimiter); i >= 0 {
				cp := in.Prefix + rest[:i+len(in.Delimiter)]
				if lastKind == "p" && last == cp {
					continue
				}
				if count == maxKeys {
					page.IsTruncated = true
					break
				}
				page.CommonPrefixes = append(page.CommonPrefixes, cp)
				count++
				lastKind, last = "p", cp
				continue
			}
		}

		if count == maxKeys {
			page.IsTruncated = true
			break
		}
		obj := b.objects[k]
		page.Objects = append(page.Objects, storage.ObjectInfo{
			Key:          k,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
		count++
		lastKind, last = "k", k
	}
	b.mu.RUnlock()

	if page.IsTruncated {
		page.NextContinuationToken = encodeToken(lastKind, last)
	}
	return page, nil
}

// Len returns the number of stored objects.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Keys returns every stored key in lexical order.
func (b *Backend) Keys() []string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	b.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Type returns "memory".
func (b *Backend) Type() string { return "memory" }

// Close is a no-op.
func (b *Backend) Close() error { return nil }

// SignedURL returns a mem:// URL carrying the options as query values.
func (b *Backend) SignedURL(_ context.Context, key string, opts storage.URLOptions) (string, error) {
	q := url.Values{}
	if opts.Expiry > 0 {
		q.Set("expires", opts.Expiry.String())
	}
	if opts.Public {
		q.Set("public", "true")
	}
	if opts.DownloadAs != "" {
		q.Set("download", opts.DownloadAs)
	}
	u := "mem:///" + key
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u, nil
}

// UploadURL returns a mem:// URL for a PUT.
func (b *Backend) UploadURL(_ context.Context, key, contentType string, expiry time.Duration) (string, error) {
	q := url.Values{"method": {"PUT"}}
	if contentType != "" {
		q.Set("contentType", contentType)
	}
	if expiry > 0 {
		q.Set("expires", expiry.String())
	}
	return "mem:///" + key + "?" + q.Encode(), nil
}

// PublicURL is always empty; the memory backend has no CDN.
func (b *Backend) PublicURL(string) string { return "" }

// ObjectLocation returns mem:///<key>.
func (b *Backend) ObjectLocation(key string) string { return "mem:///" + key }
