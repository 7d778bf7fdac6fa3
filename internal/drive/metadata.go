package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fruitsalade/bucketdrive/internal/cache"
	"github.com/fruitsalade/bucketdrive/internal/events"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

// Metadata documents live under the hidden prefix and are never listed.
const (
	starsKey   = MetadataPrefix + "stars.json"
	sharingKey = MetadataPrefix + "sharing.json"
	linksKey   = MetadataPrefix + "links.json"
)

// document is one JSON metadata object and the cache namespace holding
// its decoded form.
type document[T any] struct {
	key   string
	ns    string
	empty func() T
}

var (
	starsDoc = document[[]string]{
		key:   starsKey,
		ns:    "stars",
		empty: func() []string { return []string{} },
	}
	sharingDoc = document[map[string]SharingSettings]{
		key:   sharingKey,
		ns:    "sharing",
		empty: func() map[string]SharingSettings { return map[string]SharingSettings{} },
	}
	linksDoc = document[map[string]ShareLink]{
		key:   linksKey,
		ns:    "shareLinks",
		empty: func() map[string]ShareLink { return map[string]ShareLink{} },
	}
)

// load returns the decoded document. A missing or empty object reads as
// the empty default. Cached values are shared and must not be mutated;
// pass fresh to bypass the cache and get a private copy.
func (d document[T]) load(ctx context.Context, s *Service, fresh bool) (T, error) {
	if !fresh {
		if v, ok := cache.Lookup[T](s.cache, d.ns); ok {
			return v, nil
		}
	}

	var zero T
	rc, _, err := s.store.GetObject(ctx, d.key, 0, 0)
	if errors.Is(err, storage.ErrNotFound) {
		v := d.empty()
		if !fresh {
			s.cache.Put(d.ns, v)
		}
		return v, nil
	}
	if err != nil {
		return zero, storeError("read "+d.key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return zero, storeError("read "+d.key, err)
	}

	v := d.empty()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return zero, fmt.Errorf("decode %s: %w: %w", d.key, ErrBackingStore, err)
		}
	}
	if isNil(v) {
		v = d.empty()
	}
	if !fresh {
		s.cache.Put(d.ns, v)
	}
	return v, nil
}

func isNil(v any) bool {
	switch t := v.(type) {
	case []string:
		return t == nil
	case map[string]SharingSettings:
		return t == nil
	case map[string]ShareLink:
		return t == nil
	}
	return false
}

// update runs a read-modify-write of the document. fn gets a private
// copy and reports whether it changed it; unchanged documents are not
// written back. A write clears the whole cache.
func (d document[T]) update(ctx context.Context, s *Service, fn func(T) (T, bool, error)) (T, error) {
	mu := s.docMu[d.key]
	mu.Lock()
	defer mu.Unlock()

	var zero T
	cur, err := d.load(ctx, s, true)
	if err != nil {
		return zero, err
	}

	next, changed, err := fn(cur)
	if err != nil || !changed {
		return next, err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", d.key, err)
	}
	if err := s.store.PutObject(ctx, d.key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return zero, storeError("write "+d.key, err)
	}
	s.cache.InvalidateAll()
	return next, nil
}

// Stars returns the starred keys in the order they were starred.
func (s *Service) Stars(ctx context.Context) ([]string, error) {
	stars, err := starsDoc.load(ctx, s, false)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(stars))
	copy(out, stars)
	return out, nil
}

// ToggleStar flips membership of key in the star set and returns the
// resulting set.
func (s *Service) ToggleStar(ctx context.Context, key string) ([]string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, invalidArgument("key is required")
	}
	if isHidden(key) {
		return nil, invalidArgument("cannot star %q", key)
	}

	stars, err := starsDoc.update(ctx, s, func(cur []string) ([]string, bool, error) {
		for i, k := range cur {
			if k == key {
				return append(cur[:i], cur[i+1:]...), true, nil
			}
		}
		return append(cur, key), true, nil
	})
	if err != nil {
		return nil, err
	}
	s.mutated(events.EventStar, key, 0)
	return stars, nil
}
