package stream

import (
	"context"
	"testing"
	"time"

	"notathome.app/internal/ledger"
)

func entryEvent(sessionID, entryID string) Event {
	return Event{
		Type:      EventAddressRecorded,
		SessionID: sessionID,
		Entry:     &ledger.AddressEntry{ID: entryID, SessionID: sessionID, BlockNumber: 1, Address: "12 Main St"},
		At:        time.Now().UTC(),
	}
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesOnlyTheSessionsSubscribers(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA := h.Subscribe(ctx, "session-a")
	chB := h.Subscribe(ctx, "session-b")

	h.Publish(entryEvent("session-a", "e1"))

	got := receive(t, chA)
	if got.Entry == nil || got.Entry.ID != "e1" {
		t.Fatalf("unexpected event %+v", got)
	}

	select {
	case evt := <-chB:
		t.Fatalf("subscriber of session-b received foreign event %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeDeliversOnlyFutureEvents(t *testing.T) {
	h := NewHub()
	h.Publish(entryEvent("session-a", "before"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.Subscribe(ctx, "session-a")

	h.Publish(entryEvent("session-a", "after"))
	if got := receive(t, ch); got.Entry.ID != "after" {
		t.Fatalf("expected only the post-subscribe event, got %+v", got)
	}
}

func TestUnsubscribeOnContextCancel(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch := h.Subscribe(ctx, "session-a")
	if n := h.SubscriberCount("session-a"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for h.SubscriberCount("session-a") != 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber was not removed after cancel")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, open := <-ch; open {
		t.Fatal("channel should be closed after cancel")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	dropped := 0
	h := NewHub(WithDropHandler(func(Event) { dropped++ }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.Subscribe(ctx, "session-a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		// nobody reads ch; buffer is 16, so the rest must drop
		for i := 0; i < 50; i++ {
			h.Publish(entryEvent("session-a", "e"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	if dropped != 34 {
		t.Fatalf("expected 34 dropped events, got %d", dropped)
	}
	if len(ch) != 16 {
		t.Fatalf("expected a full buffer of 16, got %d", len(ch))
	}
}

func TestSessionClosedEventShape(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.Subscribe(ctx, "session-a")

	h.Publish(Event{Type: EventSessionClosed, SessionID: "session-a", At: time.Now().UTC()})

	got := receive(t, ch)
	if got.Type != EventSessionClosed || got.Entry != nil {
		t.Fatalf("unexpected close event %+v", got)
	}
}
