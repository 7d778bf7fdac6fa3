// Package events fans drive mutations out to server-sent event subscribers.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fruitsalade/bucketdrive/internal/metrics"
)

const (
	EventUpload       = "upload"
	EventCreateFolder = "create-folder"
	EventDelete       = "delete"
	EventBulkDelete   = "bulk-delete"
	EventTrash        = "trash"
	EventRestore      = "restore"
	EventStar         = "star"
	EventShare        = "share"
	EventLink         = "link"
)

// Event describes one completed mutation.
type Event struct {
	Type      string `json:"type"`
	Key       string `json:"key,omitempty"`
	Count     int    `json:"count,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher accepts events. The drive service depends on this, not on
// the concrete broadcaster.
type Publisher interface {
	Publish(Event)
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(Event) {}

const subscriberBuffer = 64

// Broadcaster manages subscribers and publishes events to them.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	now         func() time.Time
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		now:         time.Now,
	}
}

// Subscribe registers a subscriber. The returned cancel func removes it
// and closes the channel; calling it more than once is safe.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			close(ch)
			n := len(b.subscribers)
			b.mu.Unlock()
			metrics.SetSSEConnectionsActive(int64(n))
		})
	}
	return ch, cancel
}

// Publish sends an event to all subscribers without blocking. Slow
// consumers miss events once their buffer is full.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = b.now().UnixMilli()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
