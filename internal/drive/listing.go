package drive

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/cache"
	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

// Entry is one file or folder as shown to clients.
type Entry struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified,omitzero"`
	IsFolder     bool      `json:"isFolder"`
	URL          string    `json:"url,omitempty"`
}

// ListOptions selects a page of the drive.
type ListOptions struct {
	Prefix            string
	Limit             int
	ContinuationToken string
	Recursive         bool
}

// ListResult is a page of entries. Views that are not paginated always
// report IsTruncated false.
type ListResult struct {
	Items                 []Entry `json:"items"`
	NextContinuationToken string  `json:"nextContinuationToken,omitempty"`
	IsTruncated           bool    `json:"isTruncated"`
}

// View names accepted by ListView.
const (
	ViewRecent  = "recent"
	ViewStarred = "starred"
	ViewShared  = "shared"
)

const activityCacheKey = "activity"

func (s *Service) fileEntry(o storage.ObjectInfo) Entry {
	e := Entry{
		Key:          o.Key,
		Name:         name(o.Key),
		Size:         o.Size,
		LastModified: o.LastModified,
		IsFolder:     isFolder(o.Key),
	}
	if !e.IsFolder {
		e.URL = s.signer.PublicURL(o.Key)
	}
	return e
}

func folderEntry(prefix string) Entry {
	return Entry{Key: prefix, Name: name(prefix), IsFolder: true}
}

// visible reports whether a listed key may be shown for a query on prefix.
func visible(key, prefix string) bool {
	if key == prefix || isHidden(key) {
		return false
	}
	return strings.HasPrefix(prefix, TrashPrefix) || !isTrashed(key)
}

// List returns one bounded page under opts.Prefix and passes the store's
// continuation token through unchanged. Non-recursive listings group
// deeper keys into folder entries, which come before files.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	start := time.Now()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	in := storage.ListInput{
		Prefix:            opts.Prefix,
		ContinuationToken: opts.ContinuationToken,
		MaxKeys:           limit,
	}
	if !opts.Recursive {
		in.Delimiter = delimiter
	}

	page, err := s.store.ListObjects(ctx, in)
	if err != nil {
		metrics.RecordOperation("list", time.Since(start), false)
		return nil, storeError(fmt.Sprintf("list %q", opts.Prefix), err)
	}

	items := make([]Entry, 0, len(page.Objects)+len(page.CommonPrefixes))
	if !opts.Recursive {
		for _, cp := range page.CommonPrefixes {
			if opts.Prefix == "" && cp == TrashPrefix {
				continue
			}
			if strings.Contains(cp, MetadataPrefix) {
				continue
			}
			items = append(items, folderEntry(cp))
		}
	}
	for _, o := range page.Objects {
		if !visible(o.Key, opts.Prefix) {
			continue
		}
		if !opts.Recursive && isFolder(o.Key) {
			continue
		}
		items = append(items, s.fileEntry(o))
	}

	metrics.RecordOperation("list", time.Since(start), true)
	logging.WithContext(ctx).Debug("list",
		logging.Prefix(opts.Prefix),
		zap.Bool("recursive", opts.Recursive),
		zap.Int("items", len(items)),
		zap.Bool("truncated", page.IsTruncated))

	return &ListResult{
		Items:                 items,
		NextContinuationToken: page.NextContinuationToken,
		IsTruncated:           page.IsTruncated,
	}, nil
}

// ListView serves the named views. An empty view is a plain List.
func (s *Service) ListView(ctx context.Context, view string, opts ListOptions) (*ListResult, error) {
	var items []Entry
	var err error
	switch view {
	case "":
		return s.List(ctx, opts)
	case ViewRecent:
		limit := opts.Limit
		if limit <= 0 {
			limit = DefaultRecentLimit
		}
		items, err = s.Recent(ctx, limit)
	case ViewStarred:
		items, err = s.Starred(ctx)
	case ViewShared:
		items, err = s.Shared(ctx)
	default:
		return nil, invalidArgument("unknown view %q", view)
	}
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items}, nil
}

// Recent returns the most recently modified files outside trash, newest
// first. It is built from a single list call over the whole bucket, so in
// large buckets only the first RecentScanSize keys are considered.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	all, err := s.activity(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, min(len(all), max(limit, 0)))
	for _, e := range all {
		if limit > 0 && len(out) == limit {
			break
		}
		if !isTrashed(e.Key) {
			out = append(out, e)
		}
	}
	return out, nil
}

// activity is the cached recency scan behind Recent and the dashboard.
// Trashed files stay in it; the dashboard reports them as deletions.
func (s *Service) activity(ctx context.Context) ([]Entry, error) {
	start := time.Now()

	all, ok := cache.Lookup[[]Entry](s.cache, activityCacheKey)
	if !ok {
		page, err := s.store.ListObjects(ctx, storage.ListInput{MaxKeys: s.opts.RecentScanSize})
		if err != nil {
			metrics.RecordOperation("recent", time.Since(start), false)
			return nil, storeError("list recent", err)
		}

		all = make([]Entry, 0, len(page.Objects))
		for _, o := range page.Objects {
			if isFolder(o.Key) || isHidden(o.Key) {
				continue
			}
			all = append(all, s.fileEntry(o))
		}
		slices.SortStableFunc(all, func(a, b Entry) int {
			return b.LastModified.Compare(a.LastModified)
		})
		s.cache.Put(activityCacheKey, all)
	}

	metrics.RecordOperation("recent", time.Since(start), true)
	return all, nil
}

// allEntries returns every visible entry of the drive outside trash.
func (s *Service) allEntries(ctx context.Context) ([]Entry, error) {
	res, err := s.walk(ctx, "", "")
	if err != nil {
		return nil, err
	}
	items := make([]Entry, 0, len(res.Objects))
	for _, o := range res.Objects {
		if visible(o.Key, "") {
			items = append(items, s.fileEntry(o))
		}
	}
	return items, nil
}

// Starred returns the starred entries that still exist.
func (s *Service) Starred(ctx context.Context) ([]Entry, error) {
	stars, err := s.Stars(ctx)
	if err != nil {
		return nil, err
	}
	if len(stars) == 0 {
		return []Entry{}, nil
	}
	set := make(map[string]struct{}, len(stars))
	for _, k := range stars {
		set[k] = struct{}{}
	}

	all, err := s.allEntries(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if _, ok := set[e.Key]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Shared returns entries that are public or shared with someone.
func (s *Service) Shared(ctx context.Context) ([]Entry, error) {
	table, err := s.sharingTable(ctx)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return []Entry{}, nil
	}

	all, err := s.allEntries(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if st, ok := table[e.Key]; ok && st.isShared() {
			out = append(out, e)
		}
	}
	return out, nil
}
