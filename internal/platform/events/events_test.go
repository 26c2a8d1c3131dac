package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribersAndHandlers(t *testing.T) {
	bus := NewBus(&BusConfig{BufferSize: 2})
	ch, cancel := bus.Subscribe()
	t.Cleanup(cancel)

	var handled []string
	stop := bus.Handle(func(evt Event) { handled = append(handled, evt.Type) })

	expected := Event{Type: "leave.approved", Entity: EntityLeaveRequest, EntityID: "l-1"}
	require.NoError(t, bus.Publish(context.Background(), expected))

	select {
	case evt := <-ch:
		assert.Equal(t, expected.EntityID, evt.EntityID)
	default:
		t.Fatal("expected event to be delivered")
	}
	assert.Equal(t, []string{"leave.approved"}, handled)

	stop()
	require.NoError(t, bus.Publish(context.Background(), expected))
	assert.Len(t, handled, 1)

	cancel()
	cancel()
}

func TestBusDropsWhenSubscriberIsSlow(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe()
	t.Cleanup(cancel)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), Event{Type: "kpi.submitted"}))
	}
	assert.Len(t, ch, 1)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }

func TestFanoutJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	bus := NewBus(nil)
	pub := Fanout(bus, nil, failingPublisher{err: boom})

	err := pub.Publish(context.Background(), Event{Type: "leave.rejected"})
	assert.ErrorIs(t, err, boom)
}

func TestRedisPublisherRoundTrip(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available")
	}
	t.Cleanup(func() { _ = client.Close() })

	pub := NewRedisPublisher(client, "hrflow:test")
	events, err := pub.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, Event{Type: "leave.approved", EntityID: "l-9"}))
	select {
	case evt := <-events:
		assert.Equal(t, "l-9", evt.EntityID)
	case <-ctx.Done():
		t.Fatal("event not received")
	}
}
