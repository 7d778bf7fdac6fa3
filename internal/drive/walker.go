package drive

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

// walkResult is a fully drained listing.
type walkResult struct {
	Objects  []storage.ObjectInfo
	Prefixes []string
	Pages    int
}

// eachPage lists prefix page by page, following continuation tokens until
// the store reports no truncation. fn sees every page in order; an error
// from fn stops the walk.
func (s *Service) eachPage(ctx context.Context, prefix, delim string, fn func(*storage.ListPage) error) (int, error) {
	token := ""
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		page, err := s.store.ListObjects(ctx, storage.ListInput{
			Prefix:            prefix,
			Delimiter:         delim,
			ContinuationToken: token,
		})
		if err != nil {
			return pages, storeError(fmt.Sprintf("list %q", prefix), err)
		}
		pages++
		metrics.RecordWalkPage()

		if err := fn(page); err != nil {
			return pages, err
		}

		if !page.IsTruncated {
			return pages, nil
		}
		if page.NextContinuationToken == "" {
			return pages, fmt.Errorf("list %q: %w: truncated page without continuation token", prefix, ErrBackingStore)
		}
		token = page.NextContinuationToken
	}
}

// walk drains a listing into memory. On failure nothing is returned.
func (s *Service) walk(ctx context.Context, prefix, delim string) (*walkResult, error) {
	res := &walkResult{}
	pages, err := s.eachPage(ctx, prefix, delim, func(p *storage.ListPage) error {
		res.Objects = append(res.Objects, p.Objects...)
		res.Prefixes = append(res.Prefixes, p.CommonPrefixes...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Pages = pages

	logging.WithContext(ctx).Debug("walk complete",
		logging.Prefix(prefix),
		zap.Int("pages", pages),
		zap.Int("objects", len(res.Objects)),
		zap.Int("prefixes", len(res.Prefixes)))
	return res, nil
}

// walkKeys returns every key under prefix.
func (s *Service) walkKeys(ctx context.Context, prefix string) ([]string, error) {
	res, err := s.walk(ctx, prefix, "")
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(res.Objects))
	for i, o := range res.Objects {
		keys[i] = o.Key
	}
	return keys, nil
}
