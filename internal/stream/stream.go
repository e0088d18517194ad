package stream

import (
	"context"
	"sync"
	"time"

	"notathome.app/internal/ledger"
)

// EventType discriminates fan-out payloads.
type EventType string

const (
	// EventAddressRecorded announces one new ledger entry.
	EventAddressRecorded EventType = "address_recorded"
	// EventSessionClosed tells subscribers the session is gone and the
	// stream will go quiet.
	EventSessionClosed EventType = "session_closed"
)

// Event is one fan-out message scoped to a single session. Delivery is
// at-most-once and starts at subscribe time; there is no replay.
type Event struct {
	Type      EventType            `json:"type"`
	SessionID string               `json:"session_id"`
	Entry     *ledger.AddressEntry `json:"entry,omitempty"`
	At        time.Time            `json:"at"`
}

// Publisher is the write side of the fan-out. Hub publishes locally; Bridge
// publishes through Redis so every instance's Hub sees the event.
type Publisher interface {
	Publish(evt Event)
}

// Hub fan-outs events to the subscribers of each session.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event // session id -> subscriber id -> channel
	next   int
	onDrop func(Event)
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithDropHandler installs a callback invoked whenever a slow subscriber's
// buffer forces an event to be dropped.
func WithDropHandler(fn func(Event)) HubOption {
	return func(h *Hub) {
		h.onDrop = fn
	}
}

// NewHub initialises an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{subs: make(map[string]map[int]chan Event)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber for one session and returns the channel
// its events arrive on. The channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, sessionID string) <-chan Event {
	ch := make(chan Event, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	sessionSubs, ok := h.subs[sessionID]
	if !ok {
		sessionSubs = make(map[int]chan Event)
		h.subs[sessionID] = sessionSubs
	}
	sessionSubs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if sessionSubs, ok := h.subs[sessionID]; ok {
			delete(sessionSubs, id)
			if len(sessionSubs) == 0 {
				delete(h.subs, sessionID)
			}
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to the subscribers of its session.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[evt.SessionID] {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
			if h.onDrop != nil {
				h.onDrop(evt)
			}
		}
	}
}

// SubscriberCount reports the live subscribers for one session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
