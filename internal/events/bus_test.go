package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversEnvelope(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventOrderPlaced, 1)
	defer unsub()

	b.Publish(EventOrderPlaced, OrderPlaced{OrderID: 3, Symbol: "B"})
	env := <-ch
	assert.Equal(t, EventOrderPlaced, env.Event)
	p, ok := env.Payload.(OrderPlaced)
	require.True(t, ok)
	assert.Equal(t, int64(3), p.OrderID)
	assert.False(t, env.At.IsZero())
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := NewBus()
	_, unsub := b.Subscribe(EventOrderStatus, 1)
	defer unsub()

	b.Publish(EventOrderStatus, nil)
	b.Publish(EventOrderStatus, nil)
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestSubscribeManyAndUnsubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.SubscribeMany(4, EventSubscribed, EventUnsubscribed)
	b.Publish(EventSubscribed, Subscription{Symbol: "A", RequestID: 1})
	b.Publish(EventUnsubscribed, Subscription{Symbol: "A", RequestID: 1})
	b.Publish(EventOrderPlaced, nil)

	assert.Equal(t, EventSubscribed, (<-ch).Event)
	assert.Equal(t, EventUnsubscribed, (<-ch).Event)

	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)
	b.Publish(EventSubscribed, nil)
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() { b.Publish(EventOrderPlaced, nil) })
}
