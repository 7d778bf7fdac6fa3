// Package drive emulates a hierarchical drive on top of a flat object
// store: folders from key prefixes, trash and restore by copy-then-delete,
// stars, sharing and short links kept as JSON documents under a hidden
// prefix, streamed folder archives and storage usage.
//
// Every listing that feeds a mutation is drained to completion before the
// mutation starts. Every successful mutation clears the whole cache.
package drive

import (
	"sync"
	"time"

	"github.com/fruitsalade/bucketdrive/internal/cache"
	"github.com/fruitsalade/bucketdrive/internal/events"
	"github.com/fruitsalade/bucketdrive/internal/retry"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

const (
	DefaultListLimit   = 100
	DefaultRecentLimit = 20
	MaxListLimit       = 1000

	defaultOwner    = "owner@example.com"
	defaultCapacity = int64(1024 * 1024 * 1024)
)

// Options configure a Service. Zero values select the defaults.
type Options struct {
	// OwnerEmail always has read access.
	OwnerEmail string
	// AllowAnonymous grants read access to callers with no identity.
	AllowAnonymous bool

	CacheTTL time.Duration
	Clock    cache.Clock

	StorageCapacity int64
	URLExpiry       time.Duration
	// RecentScanSize bounds the single list call behind the recent view.
	RecentScanSize int

	Events events.Publisher
	Retry  retry.Policy
}

// Service is the drive. It is safe for concurrent use.
type Service struct {
	store  storage.Backend
	signer storage.URLSigner
	cache  *cache.Cache
	events events.Publisher
	opts   Options

	// Serializes read-modify-write of each metadata document within this
	// process. Separate replicas still race.
	docMu map[string]*sync.Mutex
}

// New creates a Service over store, issuing URLs with signer.
func New(store storage.Backend, signer storage.URLSigner, opts Options) *Service {
	if opts.OwnerEmail == "" {
		opts.OwnerEmail = defaultOwner
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = cache.SystemClock
	}
	if opts.StorageCapacity <= 0 {
		opts.StorageCapacity = defaultCapacity
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = 60 * time.Minute
	}
	if opts.RecentScanSize <= 0 || opts.RecentScanSize > storage.DefaultMaxKeys {
		opts.RecentScanSize = storage.DefaultMaxKeys
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Retry.Attempts == 0 && opts.Retry.Base == 0 {
		opts.Retry = retry.DefaultPolicy()
	}

	return &Service{
		store:  store,
		signer: signer,
		cache:  cache.New(opts.CacheTTL, opts.Clock),
		events: opts.Events,
		opts:   opts,
		docMu: map[string]*sync.Mutex{
			starsKey:   {},
			sharingKey: {},
			linksKey:   {},
		},
	}
}

func (s *Service) now() time.Time { return s.opts.Clock.Now().UTC() }

// mutated clears the cache and announces the change.
func (s *Service) mutated(eventType, key string, count int) {
	s.cache.InvalidateAll()
	s.events.Publish(events.Event{
		Type:      eventType,
		Key:       key,
		Count:     count,
		Timestamp: s.now().UnixMilli(),
	})
}
