package drive

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/events"
	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

const linkIDLength = 8

// ShareLink maps a short id to a key. Holding the id grants read access.
type ShareLink struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

func (l ShareLink) expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

// ResolvedLink is a link together with a URL for its target.
type ResolvedLink struct {
	Link ShareLink `json:"link"`
	URL  string    `json:"url"`
}

func newLinkID(taken map[string]ShareLink) string {
	for {
		id := uuid.NewString()[:linkIDLength]
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}

// CreateShortLink returns the live link for key, creating one if none
// exists. A positive ttl sets the expiry of a newly created link; expired
// links for key are dropped and replaced.
func (s *Service) CreateShortLink(ctx context.Context, key string, ttl time.Duration) (ShareLink, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return ShareLink{}, invalidArgument("key is required")
	}
	if isHidden(key) {
		return ShareLink{}, invalidArgument("cannot link %q", key)
	}

	now := s.now()
	var link ShareLink
	created := false
	_, err := linksDoc.update(ctx, s, func(table map[string]ShareLink) (map[string]ShareLink, bool, error) {
		changed := false
		for id, l := range table {
			if l.Key != key {
				continue
			}
			if l.expired(now) {
				delete(table, id)
				changed = true
				continue
			}
			link = l
			return table, changed, nil
		}

		link = ShareLink{
			ID:        newLinkID(table),
			Key:       key,
			CreatedAt: now,
		}
		if ttl > 0 {
			link.ExpiresAt = now.Add(ttl)
		}
		table[link.ID] = link
		created = true
		return table, true, nil
	})
	if err != nil {
		return ShareLink{}, err
	}

	if created {
		logging.WithContext(ctx).Info("share link created",
			logging.Key(key), zap.String("id", link.ID))
		s.mutated(events.EventLink, key, 0)
	}
	return link, nil
}

// ResolveShortLink returns the link with id and a public-style URL for its
// target. No access check is made.
func (s *Service) ResolveShortLink(ctx context.Context, id string) (*ResolvedLink, error) {
	table, err := linksDoc.load(ctx, s, false)
	if err != nil {
		return nil, err
	}
	link, ok := table[id]
	if !ok || link.expired(s.now()) {
		metrics.RecordShareLinkResolution(false)
		return nil, notFound("link %q", id)
	}
	metrics.RecordShareLinkResolution(true)

	u, err := s.signer.SignedURL(ctx, link.Key, storage.URLOptions{
		Expiry: s.opts.URLExpiry,
		Public: true,
	})
	if err != nil {
		return nil, storeError("sign "+link.Key, err)
	}
	return &ResolvedLink{Link: link, URL: u}, nil
}
