package events

import (
	"strings"
	"testing"
	"time"
)

func TestBroadcasterSubscribeCancel(t *testing.T) {
	b := NewBroadcaster()

	_, cancel1 := b.Subscribe()
	_, cancel2 := b.Subscribe()

	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	cancel1()
	cancel1()
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after cancel, got %d", b.Count())
	}

	cancel2()
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterPublish(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Event{Type: EventTrash, Key: "docs/"})

	select {
	case got := <-ch:
		if got.Type != EventTrash {
			t.Errorf("expected type %s, got %s", EventTrash, got.Type)
		}
		if got.Key != "docs/" {
			t.Errorf("expected key docs/, got %s", got.Key)
		}
		if got.Timestamp == 0 {
			t.Error("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcasterMultipleSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish(Event{Type: EventBulkDelete, Count: 3})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Count != 3 {
				t.Errorf("subscriber %d: expected count 3, got %d", i, got.Count)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: EventUpload})
	}

	if len(ch) != subscriberBuffer {
		t.Errorf("expected buffered %d events, got %d", subscriberBuffer, len(ch))
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	b.Publish(Event{Type: EventStar})
}

func TestMarshalEvent(t *testing.T) {
	data, err := MarshalEvent(Event{Type: EventLink, Key: "a.txt", Timestamp: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"type":"link"`) || !strings.Contains(s, `"key":"a.txt"`) {
		t.Errorf("unexpected json %s", s)
	}
	if strings.Contains(s, "count") {
		t.Errorf("zero count should be omitted: %s", s)
	}
}
