package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type BridgeTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	cancel context.CancelFunc
}

func (s *BridgeTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	s.client = redis.NewClient(&redis.Options{
		Addr: s.mr.Addr(),
	})
}

func (s *BridgeTestSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.client.Close()
	s.mr.Close()
}

func TestBridgeTestSuite(t *testing.T) {
	suite.Run(t, new(BridgeTestSuite))
}

// startBridge runs a bridge pump until test teardown.
func (s *BridgeTestSuite) startBridge(hub *Hub, client *redis.Client) *Bridge {
	b := NewBridge(hub, client)
	ctx, cancel := context.WithCancel(context.Background())
	prev := s.cancel
	s.cancel = func() {
		cancel()
		if prev != nil {
			prev()
		}
	}
	go func() { _ = b.Run(ctx) }()
	return b
}

// publishUntilReceived retries the publish until the subscription pump picks
// it up, since PSUBSCRIBE setup races the first send.
func (s *BridgeTestSuite) publishUntilReceived(b *Bridge, evt Event, ch <-chan Event) Event {
	var got Event
	s.Require().Eventually(func() bool {
		b.Publish(evt)
		select {
		case got = <-ch:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func (s *BridgeTestSuite) TestPublishRoundTripsThroughRedis() {
	hub := NewHub()
	bridge := s.startBridge(hub, s.client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := hub.Subscribe(ctx, "session-a")

	sent := entryEvent("session-a", "e1")
	got := s.publishUntilReceived(bridge, sent, ch)

	s.Equal(EventAddressRecorded, got.Type)
	s.Equal("session-a", got.SessionID)
	s.Require().NotNil(got.Entry)
	s.Equal("e1", got.Entry.ID)
	s.Equal("12 Main St", got.Entry.Address)
}

func (s *BridgeTestSuite) TestEventsCrossInstances() {
	// two hubs with their own bridges sharing one Redis, as two API pods would
	hubA := NewHub()
	hubB := NewHub()
	bridgeA := s.startBridge(hubA, s.client)

	clientB := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	defer clientB.Close()
	s.startBridge(hubB, clientB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chB := hubB.Subscribe(ctx, "session-a")

	got := s.publishUntilReceived(bridgeA, entryEvent("session-a", "e1"), chB)
	s.Equal("e1", got.Entry.ID)
}

func (s *BridgeTestSuite) TestForeignSessionsStayIsolated() {
	hub := NewHub()
	bridge := s.startBridge(hub, s.client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chA := hub.Subscribe(ctx, "session-a")
	chB := hub.Subscribe(ctx, "session-b")

	s.publishUntilReceived(bridge, entryEvent("session-a", "e1"), chA)

	select {
	case evt := <-chB:
		s.Failf("isolation broken", "session-b received %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}
