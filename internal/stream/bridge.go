package stream

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "notathome:session:"

var (
	_ Publisher = (*Hub)(nil)
	_ Publisher = (*Bridge)(nil)
)

// Bridge mirrors events through Redis pub/sub so subscribers on any instance
// see inserts made on any other. Local delivery still goes through the Hub:
// Publish pushes to Redis only, Run pumps Redis back into the local Hub.
type Bridge struct {
	hub  *Hub
	rdb  *redis.Client
	logf func(format string, v ...any)
}

// NewBridge wires a bridge between the local hub and a Redis client.
func NewBridge(hub *Hub, rdb *redis.Client) *Bridge {
	return &Bridge{hub: hub, rdb: rdb, logf: log.Printf}
}

// Publish sends the event to its session's Redis channel. Fan-out is
// best-effort by contract, so failures are logged and dropped.
func (b *Bridge) Publish(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		b.logf("stream bridge: marshal event: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, channelPrefix+evt.SessionID, payload).Err(); err != nil {
		b.logf("stream bridge: publish: %v", err)
	}
}

// Run subscribes to all session channels and pumps incoming events into the
// local hub until ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer func() { _ = sub.Close() }()

	// confirm the subscription before draining so no early publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logf("stream bridge: decode event: %v", err)
				continue
			}
			b.hub.Publish(evt)
		}
	}
}
