package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solswap/swap-api/internal/types"
)

func event(orderID string, status types.OrderStatus) types.StatusEvent {
	return types.StatusEvent{
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now(),
	}
}

func TestSubscriberReceivesEventsInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe("order-1")
	defer sub.Unsubscribe()

	statuses := []types.OrderStatus{types.StatusRouting, types.StatusBuilding, types.StatusSubmitted}
	for _, s := range statuses {
		bus.Publish(event("order-1", s))
	}

	for _, want := range statuses {
		got := <-sub.Events()
		assert.Equal(t, "order-1", got.OrderID)
		assert.Equal(t, want, got.Status)
	}
}

func TestSubscriberOnlySeesItsOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe("order-1")
	defer sub.Unsubscribe()

	bus.Publish(event("order-2", types.StatusRouting))
	bus.Publish(event("order-1", types.StatusRouting))

	got := <-sub.Events()
	assert.Equal(t, "order-1", got.OrderID)
	assert.Empty(t, sub.Events())
}

func TestGlobalSubscriberSeesAllOrders(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.SubscribeAll()
	defer sub.Unsubscribe()

	bus.Publish(event("order-1", types.StatusRouting))
	bus.Publish(event("order-2", types.StatusConfirmed))

	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, "order-1", first.OrderID)
	assert.Equal(t, "order-2", second.OrderID)
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.Publish(event("order-1", types.StatusRouting))

	sub := bus.Subscribe("order-1")
	defer sub.Unsubscribe()

	select {
	case got := <-sub.Events():
		t.Fatalf("expected no replay, got %v", got)
	default:
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe("order-1")
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, open := <-sub.Events()
	assert.False(t, open)

	// Publishing after unsubscribe must not panic or deliver
	bus.Publish(event("order-1", types.StatusRouting))
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe("order-1")

	// Never drained: once the buffer is full the subscriber is dropped
	// instead of blocking the publisher.
	for i := 0; i < defaultBuffer+5; i++ {
		bus.Publish(event("order-1", types.StatusRouting))
	}

	received := 0
	for range sub.Events() {
		received++
	}
	require.LessOrEqual(t, received, defaultBuffer)
}

func TestCloseDropsAllSubscribers(t *testing.T) {
	bus := NewBus()

	sub := bus.Subscribe("order-1")
	all := bus.SubscribeAll()

	bus.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
	_, open = <-all.Events()
	assert.False(t, open)

	// Subscribing after close yields an already-closed channel
	late := bus.Subscribe("order-2")
	_, open = <-late.Events()
	assert.False(t, open)
}
